package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/roomcall/roomcall/client"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		relayURL = fs.StringP("relay-url", "u", "ws://localhost:8888/ws", "relay websocket url")
		room     = fs.StringP("room", "r", "", "room to join")
		logLevel = fs.StringP("log-level", "l", "warn", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}
	if *room == "" {
		logger.Fatal().Msg("room is required")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	cl := client.New(client.Config{
		Logger:   &logger,
		RelayURL: *relayURL,
		OnEntry:  renderEntry,
		OnRemoteTrack: func(counterpartID string, _ *webrtc.TrackRemote) {
			pterm.Success.Printfln("remote media from %s", counterpartID)
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = cl.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to relay")
	}
	defer cl.Close()

	if err = cl.Join(*room); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}
	pterm.Info.Printfln("joined %s as %s", *room, cl.ParticipantID())
	pterm.Info.Println("type to chat, /video to start a call, /quit to exit")

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.Done():
			pterm.Warning.Println("relay connection lost")
			return
		case line, ok := <-input:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return
			case "/video":
				if err = cl.StartVideo(true, true); err != nil {
					pterm.Error.Printfln("video not started: %v", err)
				} else {
					pterm.Success.Println("video call started")
				}
			case "/end":
				cl.EndCall()
				pterm.Info.Println("call ended")
			default:
				if err = cl.Send(line); err != nil {
					pterm.Error.Printfln("not sent: %v", err)
				}
			}
		}
	}
}

func renderEntry(entry client.Entry) {
	if entry.SentByMe {
		pterm.FgGreen.Printfln("me> %s", entry.Content)
		return
	}
	sender := entry.SenderID
	if sender == "" {
		sender = "peer"
	}
	pterm.FgCyan.Printfln("%s> %s", sender, entry.Content)
}
