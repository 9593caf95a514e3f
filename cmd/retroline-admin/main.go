package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/retroline/retroline/config"
	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/persistence"
	"github.com/retroline/retroline/types"
)

// A very simple CLI tool for inspecting and editing persisted room
// snapshots.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	store, err := persistence.NewStore(globalConfig)
	if err != nil {
		panic(err)
	}
	if store == nil {
		panic("no persistence configured")
	}
	defer store.Close()

	ctx := context.Background()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show a room",
		Long:  `show is for printing persisted room information.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints the persisted snapshot of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := store.LoadRoom(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not load room", "error", err)
				return
			}
			if room == nil {
				globals.AppLogger.Error("room not found", "room", args[0])
				return
			}
			r, err := json.Marshal(room)
			if err != nil {
				globals.AppLogger.Error("could not marshal room", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowTTL = &cobra.Command{
		Use:   "ttl [room id]",
		Short: "Show room TTL",
		Long:  `show ttl prints how long the room snapshot remains before expiry.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ttl, err := store.TTL(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not read ttl", "error", err)
				return
			}
			fmt.Println(ttl)
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update a room",
		Long:  `set creates or updates a persisted room snapshot.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room stores a room snapshot and restarts its expiry. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			room := types.Room{}
			if err := dec.Decode(&room); err != nil {
				globals.AppLogger.Error("could not decode room", "error", err)
				return
			}
			if room.Id == "" {
				globals.AppLogger.Error("no room id")
				return
			}
			if err := store.SaveRoom(ctx, &room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
		},
	}
	var cmdTouch = &cobra.Command{
		Use:   "touch [room id]",
		Short: "Refresh room expiry",
		Long:  `touch re-saves the room snapshot, restarting its time to live.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := store.LoadRoom(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not load room", "error", err)
				return
			}
			if room == nil {
				globals.AppLogger.Error("room not found", "room", args[0])
				return
			}
			if err := store.SaveRoom(ctx, room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
		},
	}
	var rootCmd = &cobra.Command{Use: "retroline-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdTouch)
	cmdShow.AddCommand(cmdShowRoom, cmdShowTTL)
	cmdSet.AddCommand(cmdSetRoom)
	rootCmd.Execute()
}
