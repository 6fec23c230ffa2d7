// Command cktap-usb is a thin example binary that discovers a CCID-attached
// tap card over USB and prints its status and certificate-chain result.
// Argument parsing, JSON formatting, and everything else a real CLI front
// end needs are explicitly out of scope for the cktap package; this is a
// demonstration of the caller surface, not that front end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/tapcards/cktap-core"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	doRead := flag.Bool("read", false, "also perform a verified read")
	flag.Parse()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	card, err := cktap.FindFirstCard(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no tap card found:", err)
		os.Exit(1)
	}
	defer card.Close()

	status, err := card.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status failed:", err)
		os.Exit(1)
	}

	fmt.Printf("product:   %s\n", status.Product)
	fmt.Printf("identity:  %s\n", status.Identity)
	fmt.Printf("version:   %s\n", status.Version)
	fmt.Printf("birth:     %d\n", status.Birth)
	if status.Product == cktap.ProductSatsCard {
		fmt.Printf("slot:      %d/%d\n", status.ActiveSlot, status.NumSlots)
	}

	if err := card.Certs(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "certificate chain invalid:", err)
		os.Exit(1)
	}
	fmt.Println("certificate chain: OK")

	if *doRead {
		cvc := os.Getenv("CKTAP_CVC")
		if cvc == "" && status.Product != cktap.ProductSatsCard {
			cvc = promptCVC()
		}
		result, err := card.Read(ctx, cvc)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read failed:", err)
			os.Exit(1)
		}
		fmt.Printf("pubkey:    %x\n", result.PublicKey)
		if result.Address != "" {
			fmt.Printf("address:   %s\n", result.Address)
		}
	}
}

func promptCVC() string {
	fmt.Fprint(os.Stderr, "CVC: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read CVC:", err)
		os.Exit(1)
	}
	return string(b)
}
