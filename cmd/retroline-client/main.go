package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/retroline/retroline/client"
	"github.com/retroline/retroline/types"
)

// A minimal interactive terminal participant, mostly useful for poking at
// a running server.

var (
	host        = pflag.String("host", "localhost:8000", "server address (host:port)")
	secure      = pflag.Bool("secure", false, "use wss instead of ws")
	roomId      = pflag.String("room", "", "room id to join")
	roomName    = pflag.String("room-name", "", "room name, used when the room is created by this join")
	userName    = pflag.String("name", "", "display name")
	facilitator = pflag.Bool("facilitator", false, "request facilitator status (only honored for an empty room)")
)

func main() {
	log.SetFlags(0)
	pflag.Parse()

	if *roomId == "" {
		fmt.Fprintln(os.Stderr, "--room is required")
		os.Exit(1)
	}

	session, err := client.Dial(client.Options{
		Host:        *host,
		Secure:      *secure,
		RoomId:      *roomId,
		UserName:    *userName,
		RoomName:    *roomName,
		Facilitator: *facilitator,
		OnChange: func(room *types.Room) {
			printBoard(room)
		},
		OnState: func(state client.ConnState) {
			fmt.Printf("-- %s\n", state)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer session.Close()

	fmt.Printf("joined %s as %s (%s)\n", *roomId, *userName, session.UserId())
	fmt.Println("commands: card <column> <text> | edit <cardId> <text> | del <cardId> | vote <cardId> | unvote <cardId> | react <cardId> <emoji> | unreact <cardId> <emoji> | poll <pollId> <value> | unpoll <pollId> | voting on|off | show | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		var err error
		switch fields[0] {
		case "card":
			if len(fields) < 3 {
				fmt.Println("usage: card <column> <text>")
				continue
			}
			err = session.AddCard(strings.Join(fields[2:], " "), types.Column(fields[1]))
		case "edit":
			if len(fields) < 3 {
				fmt.Println("usage: edit <cardId> <text>")
				continue
			}
			content := strings.Join(fields[2:], " ")
			err = session.UpdateCard(types.UpdateCardRequest{Id: fields[1], Content: &content})
		case "del":
			if len(fields) < 2 {
				fmt.Println("usage: del <cardId>")
				continue
			}
			err = session.DeleteCard(fields[1])
		case "vote":
			if len(fields) < 2 {
				fmt.Println("usage: vote <cardId>")
				continue
			}
			err = session.AddVote(fields[1])
		case "unvote":
			if len(fields) < 2 {
				fmt.Println("usage: unvote <cardId>")
				continue
			}
			err = session.RemoveVote(fields[1])
		case "react":
			if len(fields) < 3 {
				fmt.Println("usage: react <cardId> <emoji>")
				continue
			}
			err = session.AddReaction(fields[1], fields[2])
		case "unreact":
			if len(fields) < 3 {
				fmt.Println("usage: unreact <cardId> <emoji>")
				continue
			}
			err = session.RemoveReaction(fields[1], fields[2])
		case "poll":
			if len(fields) < 3 {
				fmt.Println("usage: poll <pollId> <value>")
				continue
			}
			err = session.VotePoll(fields[1], strings.Join(fields[2:], " "))
		case "unpoll":
			if len(fields) < 2 {
				fmt.Println("usage: unpoll <pollId>")
				continue
			}
			err = session.UnvotePoll(fields[1])
		case "voting":
			if len(fields) < 2 {
				fmt.Println("usage: voting on|off")
				continue
			}
			enabled := fields[1] == "on"
			err = session.UpdateSettings(types.SettingsPatch{AllowVoting: &enabled})
		case "show":
			printBoard(session.Room())
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func printBoard(room *types.Room) {
	if room == nil {
		fmt.Println("-- no room state yet")
		return
	}
	fmt.Printf("== %s (%d users, phase %s)\n", room.Name, len(room.Users), room.Phase)
	for _, card := range room.Cards {
		reactions := make([]string, 0, len(card.Reactions))
		for _, r := range card.Reactions {
			reactions = append(reactions, r.Emoji)
		}
		fmt.Printf("  [%s] %s  %q by %s, votes %d %s\n",
			card.Column, card.Id, card.Content, card.AuthorName, card.Votes, strings.Join(reactions, ""))
	}
	for i, poll := range room.Polls {
		count := 0
		for _, pv := range room.PollVotes {
			if pv.PollId == types.PollId(i) {
				count++
			}
		}
		fmt.Printf("  poll %s (%s) %q: %d votes\n", types.PollId(i), poll.Type, poll.Question, count)
	}
}
