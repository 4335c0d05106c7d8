// deskyctl is a tool for inspecting and maintaining a partitioned
// compressed-text store. See --help pages of each sub-command for
// documentation and usage examples.
package main

import (
	"github.com/jessevdk/go-flags"

	mbp "go.opendesky.dev/textstore/mainboilerplate"
	"go.opendesky.dev/textstore/store"
)

// Config is the top-level configuration of deskyctl.
var Config = struct {
	Base string        `long:"base" env:"TEXTSTORE_BASE" default:"data/texts" description:"Base directory of the text store"`
	Log  mbp.LogConfig `group:"Logging" env-namespace:"TEXTSTORE"`
}{}

// openStore returns a Store over the configured base directory.
func openStore() *store.Store { return store.NewStore(Config.Base) }

func main() {
	var parser = flags.NewParser(&Config, flags.Default)
	parser.LongDescription = `deskyctl inspects and maintains a store of compressed, extracted notice-board
document texts, partitioned into per-(region, year) SQLite files with trained
zstd dictionaries.`

	var mustAddCmd = func(name, short, long string, cfg interface{}) {
		var _, err = parser.AddCommand(name, short, long, cfg)
		mbp.Must(err, "failed to add command", "command", name)
	}
	mustAddCmd("stats", "Show store statistics",
		"Aggregate and per-partition record counts, sizes, and compression ratio.", &cmdStats{})
	mustAddCmd("train-global", "Train the global dictionary",
		"Train the store-wide fallback dictionary from samples across all partitions.", &cmdTrainGlobal{})
	mustAddCmd("recompress", "Re-compress legacy records",
		"Re-compress records written before their partition's dictionary existed.", &cmdRecompress{})
	mustAddCmd("get", "Print a stored text",
		"Load one attachment's text by ID and partition coordinates.", &cmdGet{})
	mustAddCmd("put", "Store a text from stdin",
		"Compress and store stdin as one attachment's text.", &cmdPut{})
	mustAddCmd("del", "Delete a stored text",
		"Delete one attachment's text by ID and partition coordinates.", &cmdDel{})

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		mbp.InitLog(Config.Log)
		return cmd.Execute(args)
	}
	mbp.MustParseArgs(parser)
}
