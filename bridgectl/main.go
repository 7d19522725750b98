package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/drawpad/bridge/bridge"
)

const BridgeCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Drawpad bridge control.

Joins a room through the sync service and logs store status
transitions and document changes until interrupted.

Usage:
    bridgectl join --url=<url> [--jwt=<jwt>]
        [--name=<name>]
        [--color=<color>]
    bridgectl --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --url=<url>        Sync service websocket url.
    --jwt=<jwt>        Session auth token. Prompted for when omitted.
    --name=<name>      Presence display name.
    --color=<color>    Presence display color.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BridgeCtlVersion)
	if err != nil {
		panic(err)
	}

	if join_, _ := opts.Bool("join"); join_ {
		join(opts)
	}
}

func join(opts docopt.Opts) {
	url := opts["--url"].(string)

	var byJwt string
	if jwtAny := opts["--jwt"]; jwtAny != nil {
		byJwt = jwtAny.(string)
	} else {
		fmt.Print("Enter session token: ")
		tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			Err.Fatalf("read token: %s", err)
		}
		byJwt = string(tokenBytes)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := bridge.NewWebsocketRemoteWithDefaults(cancelCtx, url, byJwt)
	if err != nil {
		Err.Fatalf("remote: %s", err)
	}
	defer remote.Close()

	Out.Printf("client_id: %s", remote.ClientId())
	Out.Printf("room_id: %s", remote.RoomId())

	b := bridge.NewBridgeWithDefaults(cancelCtx, remote)
	defer b.Close()

	preferences := bridge.UserPreferences{}
	if nameAny := opts["--name"]; nameAny != nil {
		preferences.Name = nameAny.(string)
	}
	if colorAny := opts["--color"]; colorAny != nil {
		preferences.Color = colorAny.(string)
	}
	b.SetUserPreferences(preferences)

	unsubStatus := b.AddStatusCallback(func(status *bridge.StoreWithStatus) {
		if status.Status == bridge.StatusError {
			Out.Printf("status: %s (%s)", status.Status, status.Err)
		} else if status.ConnectionStatus != "" {
			Out.Printf("status: %s (%s)", status.Status, status.ConnectionStatus)
		} else {
			Out.Printf("status: %s", status.Status)
		}
	})
	defer unsubStatus()

	unsubChanges := b.Store().Listen(func(batch *bridge.ChangeBatch) {
		Out.Printf(
			"[%s] +%d ~%d -%d (%d records)",
			batch.Origin,
			len(batch.Added),
			len(batch.Updated),
			len(batch.Removed),
			b.Store().Size(),
		)
	}, bridge.ListenFilter{})
	defer unsubChanges()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case <-sigs:
	case <-cancelCtx.Done():
	}
}
