// Command cktap-emulator is a thin example binary that talks to the
// Coinkite emulator over its Unix-domain socket instead of real USB
// hardware, useful for protocol development without a physical card.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tapcards/cktap-core"
)

func main() {
	socketPath := flag.String("socket", os.Getenv("CKTAP_EMULATOR_SOCKET"), "path to the emulator's Unix-domain socket")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	card, err := cktap.NewEmulatorCard(ctx, *socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to emulator:", err)
		os.Exit(1)
	}
	defer card.Close()

	cktap.UseEmulatorFactoryRoot(card)

	status, err := card.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status failed:", err)
		os.Exit(1)
	}
	fmt.Printf("product:  %s\n", status.Product)
	fmt.Printf("identity: %s\n", status.Identity)

	if err := card.Certs(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "certificate chain invalid:", err)
		os.Exit(1)
	}
	fmt.Println("certificate chain: OK (emulator root)")
}
