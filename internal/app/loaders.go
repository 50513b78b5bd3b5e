package app

import (
	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/config/hclload"
	"github.com/specialistvlad/scriptloader/internal/config/tomlload"
	"github.com/specialistvlad/scriptloader/internal/config/yamlload"
)

// coreLoaders is the definitive list of manifest formats compiled into the
// scriptloader binary.
var coreLoaders = []config.Loader{
	hclload.NewLoader(),
	yamlload.NewLoader(),
	tomlload.NewLoader(),
}
