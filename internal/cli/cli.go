package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Run      *RunCommand
	Devices  *DevicesCommand
	Catalog  *CatalogCommand
	Sessions *SessionsCommand
	Show     *ShowCommand
	Status   *StatusCommand
	Inspect  *InspectCommand
	Export   *ExportCommand
	Delete   *DeleteCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	// Errors are returned to main for printing; only help goes to stdout here.
	parser := goflags.NewParser(&globals, goflags.HelpFlag|goflags.PassDoubleDash)
	parser.Name = "stimlog"
	parser.LongDescription = "Stimulus-synchronized EEG acquisition and session logging."

	cmds := &commands{
		Run:      &RunCommand{globals: &globals, version: version},
		Devices:  &DevicesCommand{globals: &globals, version: version},
		Catalog:  &CatalogCommand{globals: &globals, version: version},
		Sessions: &SessionsCommand{globals: &globals, version: version},
		Show:     &ShowCommand{globals: &globals, version: version},
		Status:   &StatusCommand{globals: &globals, version: version},
		Inspect:  &InspectCommand{globals: &globals, version: version},
		Export:   &ExportCommand{globals: &globals, version: version},
		Delete:   &DeleteCommand{globals: &globals, version: version},
	}

	parser.AddCommand("run", "Run an acquisition session", "Present the stimulus sequence while logging every sampled frame to a session CSV.", cmds.Run)
	parser.AddCommand("devices", "List available devices", "Enumerate the devices visible to the configured driver.", cmds.Devices)
	parser.AddCommand("catalog", "Show the stimulus catalog", "Build the stimulus catalog from the configured class directories and print it.", cmds.Catalog)
	parser.AddCommand("sessions", "List recorded sessions", "List sessions recorded in the session index, newest first.", cmds.Sessions)
	parser.AddCommand("show", "Show one session", "Print a session from the index together with its trials.", cmds.Show)
	parser.AddCommand("status", "Show session index statistics", "Show session index statistics and a configuration summary.", cmds.Status)
	parser.AddCommand("inspect", "Inspect a session CSV", "Classify every row of a session CSV and report blocks and timestamp order.", cmds.Inspect)
	parser.AddCommand("export", "Export a session CSV to EDF", "Convert a session CSV into an EDF file with a trigger channel.", cmds.Export)
	parser.AddCommand("delete", "Delete a session from the index", "Delete a session from the index. Destructive operation with safety prompt.", cmds.Delete)

	return parser, &globals, cmds
}

// Run is the main entry point for the stimlog CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("stimlog %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				fmt.Println(flagsErr.Message)
				return nil
			}
		}
		return err
	}

	return nil
}
