// Command cardctl issues fare cards and drives them over HTTP or, like a
// fare gate validator, over ISO 8583.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	farecard8583 "github.com/jonanatree/farecard/farecard/iso8583"
	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/cardgen"
	"github.com/jonanatree/farecard/internal/farecardclient"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const usage = `usage: cardctl <command> [flags]

commands:
  gen            print card numbers without issuing them
  issue          issue a card through the HTTP API
  ride           charge a ride to a card through the HTTP API
  topup          top a card up through the HTTP API
  terminal-ride  charge a ride as a fare gate validator over ISO 8583`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "gen":
		return runGen(args[1:], out)
	case "issue":
		return runIssue(ctx, args[1:], out)
	case "ride":
		return runRide(ctx, args[1:], out)
	case "topup":
		return runTopUp(ctx, args[1:], out)
	case "terminal-ride":
		return runTerminalRide(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runGen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	prefix := fs.String("prefix", cardgen.DefaultPrefix, "card number prefix")
	length := fs.Int("length", cardgen.DefaultLength, "card number length including check digit")
	count := fs.Int("n", 1, "how many numbers")
	sequence := fs.Bool("sequence", false, "sequential numbers instead of random ones")
	verbose := fs.Bool("verbose", false, "print full numbers (otherwise masked)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cardgen.ValidatePrefix(*prefix); err != nil {
		return err
	}

	var provider cardgen.Provider = cardgen.NewRandom(*prefix, *length)
	if *sequence {
		provider = cardgen.NewSequence(*prefix, *length)
	}

	for i := 0; i < *count; i++ {
		number, err := provider.NewNumber()
		if err != nil {
			return err
		}
		if !*verbose {
			number = cardgen.Mask(number)
		}
		fmt.Fprintln(out, number)
	}
	return nil
}

func runIssue(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	base := fs.String("server", "http://127.0.0.1:9090", "fare card service base URL")
	balance := fs.Int64("balance", 0, "opening balance")
	name := fs.String("name", "", "holder name printed on the card")
	if err := fs.Parse(args); err != nil {
		return err
	}

	card, err := client(*base).IssueCard(ctx, models.CreateCard{Balance: *balance, HolderName: *name})
	if err != nil {
		return err
	}
	return printJSON(out, card)
}

func runRide(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ride", flag.ContinueOnError)
	base := fs.String("server", "http://127.0.0.1:9090", "fare card service base URL")
	cardID := fs.String("card", "", "card ID")
	distance := fs.Float64("distance", 0, "ride distance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cardID == "" {
		return errors.New("-card is required")
	}

	txn, err := client(*base).PerformRide(ctx, *cardID, *distance)
	if err != nil {
		return err
	}
	return printJSON(out, txn)
}

func runTopUp(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("topup", flag.ContinueOnError)
	base := fs.String("server", "http://127.0.0.1:9090", "fare card service base URL")
	cardID := fs.String("card", "", "card ID")
	amount := fs.Int64("amount", 0, "amount to add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cardID == "" {
		return errors.New("-card is required")
	}

	txn, err := client(*base).TopUp(ctx, *cardID, *amount)
	if err != nil {
		return err
	}
	return printJSON(out, txn)
}

func runTerminalRide(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("terminal-ride", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8583", "ISO 8583 address of the fare card service")
	terminal := fs.String("terminal", "GATE0001", "terminal (vehicle) ID")
	number := fs.String("number", "", "card number")
	distance := fs.Float64("distance", 0, "ride distance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cardgen.Validate(*number); err != nil {
		return err
	}

	c, err := farecard8583.Dial(*addr, *terminal)
	if err != nil {
		return err
	}
	defer c.Close()

	reply, err := c.Ride(*number, *distance)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "response=%s stan=%s fare=%d balance=%d\n", reply.ResponseCode, reply.STAN, reply.Amount, reply.Balance)
	return nil
}

func client(base string) *farecardclient.Client {
	return farecardclient.New(base, nil)
}

func printJSON(out io.Writer, v any) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(enc))
	return err
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
