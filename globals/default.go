package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "retroline",
	Level: hclog.LevelFromString("INFO"),
})
