// Command pawnctl is a controller for a running pawn bridge.
//
//	pawnctl [-addr host:port] <command> [args]
//
// Commands:
//
//	pawns                         list controllable pawns
//	subscribe <pawn>              start receiving snapshots of a pawn
//	updates                       drain queued snapshots
//	move <pawn> <x> <z>           walk a pawn to a cell
//	attack <pawn> <target>        melee attack a thing
//	interact <pawn> <target> <kind>  chat or arrest
//	use <pawn> <item>             use a carried item
//	raw <payload>                 send a payload verbatim
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/signalsfoundry/pawnbridge/internal/client"
	"github.com/signalsfoundry/pawnbridge/internal/command"
)

var errUsage = errors.New("usage: pawnctl [-addr host:port] [-timeout d] pawns|subscribe|updates|move|attack|interact|use|raw ...")

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("pawnctl: %v", err)
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pawnctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "127.0.0.1:5000", "bridge address (host:port)")
	timeout := fs.Duration("timeout", 5*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	c := client.New(*addr)
	c.Timeout = *timeout

	name, params := rest[0], rest[1:]
	switch name {
	case "pawns":
		pawns, err := c.Pawns(ctx)
		if err != nil {
			return err
		}
		for _, p := range pawns {
			fmt.Fprintf(out, "%d\t%s\t(%d,%d)\t%.2f\n", p.ID, p.Name, p.Position.X, p.Position.Z, p.Health)
		}
		return nil
	case "subscribe":
		ids, err := ints(params, 1)
		if err != nil {
			return err
		}
		if err := c.Subscribe(ctx, ids[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, "SUBSCRIBED")
		return nil
	case "updates":
		updates, err := c.StateUpdates(ctx)
		if err != nil {
			return err
		}
		for _, u := range updates {
			fmt.Fprintln(out, string(u))
		}
		return nil
	case "raw":
		if len(params) != 1 {
			return errUsage
		}
		resp, err := c.Do(ctx, []byte(params[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(resp))
		return nil
	}

	cmd, err := buildCommand(name, params)
	if err != nil {
		return err
	}
	if err := c.Send(ctx, cmd); err != nil {
		return err
	}
	payload, _ := json.Marshal(cmd)
	fmt.Fprintf(out, "ACK %s %s\n", cmd.Kind(), payload)
	return nil
}

func buildCommand(name string, params []string) (command.Command, error) {
	switch name {
	case "move":
		n, err := ints(params, 3)
		if err != nil {
			return nil, err
		}
		return command.MoveTo{PawnID: n[0], X: n[1], Z: n[2]}, nil
	case "attack":
		n, err := ints(params, 2)
		if err != nil {
			return nil, err
		}
		return command.Attack{PawnID: n[0], TargetID: n[1]}, nil
	case "interact":
		if len(params) != 3 {
			return nil, errUsage
		}
		n, err := ints(params[:2], 2)
		if err != nil {
			return nil, err
		}
		return command.Interact{PawnID: n[0], TargetID: n[1], Interaction: params[2]}, nil
	case "use":
		n, err := ints(params, 2)
		if err != nil {
			return nil, err
		}
		return command.UseItem{PawnID: n[0], ItemID: n[1]}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, name)
}

func ints(params []string, want int) ([]int, error) {
	if len(params) != want {
		return nil, fmt.Errorf("%w: expected %d integer arguments, got %d", errUsage, want, len(params))
	}
	out := make([]int, len(params))
	for i, p := range params {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
