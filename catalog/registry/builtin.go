// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package registry

// builtin is the curated constellation set. Entries without a query (geo)
// exist for categorization only and are never harvested.
var builtin = []Entry{
	{
		Slug:        "starlink",
		Name:        "Starlink",
		Query:       "OBJECT_NAME~~STARLINK",
		Category:    "internet",
		Color:       "#1DA1F2",
		Description: "SpaceX broadband internet constellation",
	},
	{
		Slug:        "oneweb",
		Name:        "OneWeb",
		Query:       "OBJECT_NAME~~ONEWEB",
		Category:    "internet",
		Color:       "#00A3E0",
		Description: "OneWeb broadband internet constellation",
	},
	{
		Slug:        "kuiper",
		Name:        "Project Kuiper",
		Query:       "OBJECT_NAME~~KUIPER",
		Category:    "internet",
		Color:       "#FF9900",
		Description: "Amazon broadband internet constellation",
	},
	{
		Slug:        "iridium",
		Name:        "Iridium",
		Query:       "OBJECT_NAME~~IRIDIUM",
		Category:    "cellular",
		Color:       "#FF6B35",
		Description: "Iridium satellite communications",
	},
	{
		Slug:        "globalstar",
		Name:        "Globalstar",
		Query:       "OBJECT_NAME~~GLOBALSTAR",
		Category:    "cellular",
		Color:       "#FFA726",
		Description: "Globalstar satellite phone and data",
	},
	{
		Slug:        "orbcomm",
		Name:        "Orbcomm",
		Query:       "OBJECT_NAME~~ORBCOMM",
		Category:    "iot",
		Color:       "#26A69A",
		Description: "Orbcomm machine-to-machine messaging",
	},
	{
		Slug:        "gps",
		Name:        "GPS",
		Query:       "OBJECT_NAME~~NAVSTAR",
		Category:    "positioning",
		Color:       "#4CAF50",
		Description: "United States Global Positioning System",
	},
	{
		Slug:        "glonass",
		Name:        "GLONASS",
		Query:       "OBJECT_NAME~~COSMOS",
		Category:    "positioning",
		Color:       "#F44336",
		Description: "Russian global navigation satellite system",
	},
	{
		Slug:        "galileo",
		Name:        "Galileo",
		Query:       "OBJECT_NAME~~GALILEO",
		Category:    "positioning",
		Color:       "#2196F3",
		Description: "European global navigation satellite system",
	},
	{
		Slug:        "beidou",
		Name:        "BeiDou",
		Query:       "OBJECT_NAME~~BEIDOU",
		Category:    "positioning",
		Color:       "#FF9800",
		Description: "Chinese global navigation satellite system",
	},
	{
		Slug:        "planet",
		Name:        "Planet Labs",
		Query:       "OBJECT_NAME~~FLOCK,OBJECT_NAME~~DOVE,OBJECT_NAME~~SKYSAT",
		Category:    "earth_obs",
		Color:       "#9C27B0",
		Description: "Planet Labs Earth imaging fleet",
	},
	{
		Slug:        "spire",
		Name:        "Spire",
		Query:       "OBJECT_NAME~~SPIRE,OBJECT_NAME~~LEMUR",
		Category:    "weather",
		Color:       "#00BCD4",
		Description: "Spire weather and ship tracking cubesats",
	},
	{
		Slug:        "intelsat",
		Name:        "Intelsat",
		Query:       "OBJECT_NAME~~INTELSAT",
		Category:    "geostationary",
		Color:       "#607D8B",
		Description: "Intelsat geostationary communications fleet",
	},
	{
		Slug:        "ses",
		Name:        "SES",
		Query:       "OBJECT_NAME~~SES-,OBJECT_NAME~~ASTRA",
		Category:    "geostationary",
		Color:       "#795548",
		Description: "SES geostationary communications fleet",
	},
	{
		Slug:        "geo",
		Name:        "Geostationary",
		Query:       "",
		Category:    "geostationary",
		Color:       "#3F51B5",
		Description: "Other geostationary satellites",
	},
	{
		Slug:        "stations",
		Name:        "Space Stations",
		Query:       "OBJECT_NAME~~ISS,OBJECT_NAME~~TIANGONG,OBJECT_NAME~~CSS",
		Category:    "science",
		Color:       "#FFEB3B",
		Description: "Crewed space stations",
	},
	{
		Slug:        "swarm",
		Name:        "Swarm",
		Query:       "OBJECT_NAME~~SWARM",
		Category:    "science",
		Color:       "#AB47BC",
		Description: "ESA Swarm geomagnetic field mission",
	},
	{
		Slug:        "qianfan",
		Name:        "Qianfan",
		Query:       "OBJECT_NAME~~QIANFAN,OBJECT_NAME~~G60",
		Category:    "internet",
		Color:       "#E53935",
		Description: "Shanghai Spacecom Thousand Sails constellation",
	},
	{
		Slug:        "guowang",
		Name:        "Guowang",
		Query:       "OBJECT_NAME~~GUOWANG,OBJECT_NAME~~GW-",
		Category:    "internet",
		Color:       "#C62828",
		Description: "China SatNet national broadband constellation",
	},
	{
		Slug:        "galaxyspace",
		Name:        "GalaxySpace",
		Query:       "OBJECT_NAME~~GALAXY,OBJECT_NAME~~YINHE",
		Category:    "internet",
		Color:       "#7B1FA2",
		Description: "GalaxySpace Yinhe broadband constellation",
	},
	{
		Slug:        "jilin",
		Name:        "Jilin-1",
		Query:       "OBJECT_NAME~~JILIN",
		Category:    "earth_obs",
		Color:       "#00796B",
		Description: "Chang Guang Jilin-1 Earth imaging fleet",
	},
	{
		Slug:        "tianqi",
		Name:        "Tianqi",
		Query:       "OBJECT_NAME~~TIANQI",
		Category:    "iot",
		Color:       "#5D4037",
		Description: "Guodian Gaoke Tianqi IoT constellation",
	},
	{
		Slug:        "yaogan",
		Name:        "Yaogan",
		Query:       "OBJECT_NAME~~YAOGAN",
		Category:    "earth_obs",
		Color:       "#455A64",
		Description: "Chinese Yaogan remote sensing series",
	},
	{
		Slug:        "bluewalker",
		Name:        "AST SpaceMobile",
		Query:       "OBJECT_NAME~~BLUEWALKER,OBJECT_NAME~~AST SPACE",
		Category:    "cellular",
		Color:       "#1565C0",
		Description: "AST SpaceMobile direct-to-cell constellation",
	},
	{
		Slug:        "lynk",
		Name:        "Lynk",
		Query:       "OBJECT_NAME~~LYNK",
		Category:    "cellular",
		Color:       "#0097A7",
		Description: "Lynk Global direct-to-cell constellation",
	},
	{
		Slug:        "espace",
		Name:        "E-Space",
		Query:       "OBJECT_NAME~~E-SPACE",
		Category:    "internet",
		Color:       "#6A1B9A",
		Description: "E-Space demonstration constellation",
	},
	{
		Slug:        "geespace",
		Name:        "Geespace",
		Query:       "OBJECT_NAME~~GEESPACE,OBJECT_NAME~~GEELY",
		Category:    "iot",
		Color:       "#37474F",
		Description: "Geely Geespace positioning and IoT constellation",
	},
}
