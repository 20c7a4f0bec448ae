package app

import (
	"github.com/vk/gridloop/internal/registry"
	"github.com/vk/gridloop/modules/counter"
	"github.com/vk/gridloop/modules/http_request"
	"github.com/vk/gridloop/modules/print"
)

// coreModules is the definitive list of all modules that are compiled into
// the gridloop binary.
var coreModules = []registry.Module{
	&counter.Module{},
	&http_request.Module{},
	&print.Module{},
}
