package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"escrowchain/cmd/internal/passphrase"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/token"
	"escrowchain/rpc"
)

const (
	rpcURLEnv       = "ESCROW_RPC_URL"
	keystorePassEnv = "ESCROW_KEYSTORE_PASS"
)

// app carries the global flags shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	client   *rpc.Client
	escrowID crypto.Address
	tokenID  crypto.Address
	pass     func() (string, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, passphrase.NewSource(keystorePassEnv, "keystore").Get))
}

func run(args []string, stdout, stderr io.Writer, pass func() (string, error)) int {
	defaultRPC := strings.TrimSpace(os.Getenv(rpcURLEnv))
	if defaultRPC == "" {
		defaultRPC = "http://127.0.0.1:8080"
	}

	root := flag.NewFlagSet("escrowctl", flag.ContinueOnError)
	root.SetOutput(stderr)
	rpcURL := root.String("rpc", defaultRPC, "escrowd RPC endpoint")
	escrowProgram := root.String("escrow-program", escrow.DefaultProgramID.String(), "escrow program id")
	tokenProgram := root.String("token-program", token.DefaultProgramID.String(), "token program id")
	if err := root.Parse(args); err != nil {
		return 2
	}

	rest := root.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	a := &app{
		stdout: stdout,
		stderr: stderr,
		client: rpc.NewClient(*rpcURL),
		pass:   pass,
	}
	var err error
	if a.escrowID, err = crypto.ParseAddress(*escrowProgram); err != nil {
		fmt.Fprintf(stderr, "invalid --escrow-program: %v\n", err)
		return 1
	}
	if a.tokenID, err = crypto.ParseAddress(*tokenProgram); err != nil {
		fmt.Fprintf(stderr, "invalid --token-program: %v\n", err)
		return 1
	}

	commands := map[string]func([]string) error{
		"keygen":      a.keygen,
		"address":     a.address,
		"derive":      a.derive,
		"init-escrow": a.initEscrow,
		"set-owner":   a.setOwner,
		"fund":        a.fund,
		"disburse":    a.disburse,
		"escrow":      a.showEscrow,
		"job":         a.showJob,
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	if err := cmd(rest[1:]); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func usage() string {
	return `usage: escrowctl [global flags] <command> [flags]

commands:
  keygen       create a keystore
  address      print the address of a keystore
  derive       print the escrow, custody and job addresses of a mint
  init-escrow  allocate and initialize the escrow of a mint
  set-owner    transfer control of an escrow
  fund         deposit tokens into the signer's job
  disburse     release tokens from a job (escrow owner only)
  escrow       show an escrow record
  job          show a job record`
}
