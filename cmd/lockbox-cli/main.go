package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	keyPassEnv     = "LOCKBOX_KEY_PASS"
	rpcTokenEnv    = "LOCKBOX_RPC_TOKEN"
	defaultChainID = "lockbox-local"
)

// globals are the options shared by every subcommand.
type globals struct {
	rpcURL  string
	chainID string
	token   string
}

func defaultGlobals() globals {
	g := globals{
		rpcURL:  "http://127.0.0.1:8645",
		chainID: defaultChainID,
		token:   strings.TrimSpace(os.Getenv(rpcTokenEnv)),
	}
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		g.rpcURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCKBOX_CHAIN_ID")); v != "" {
		g.chainID = v
	}
	return g
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g := defaultGlobals()
	args, err := applyGlobalFlags(&g, args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(args) < 1 {
		printUsage(stdout)
		return 2
	}

	var cmdErr error
	switch args[0] {
	case "keygen":
		cmdErr = runKeygen(args[1:], stdout)
	case "address":
		cmdErr = runAddress(args[1:], stdout)
	case "probe-keygen":
		cmdErr = runProbeKeygen(stdout)
	case "share-hash":
		cmdErr = runShareHash(args[1:], stdout)
	case "seal-probe":
		cmdErr = runSealProbe(args[1:], stdout)
	case "open-probe":
		cmdErr = runOpenProbe(args[1:], stdout)
	case "tx":
		cmdErr = runTx(g, args[1:], stdout)
	case "query":
		cmdErr = runQuery(g, args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		printUsage(stderr)
		return 2
	}
	if cmdErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", cmdErr)
		return 1
	}
	return 0
}

func applyGlobalFlags(g *globals, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var target *string
		switch {
		case arg == "--rpc":
			target = &g.rpcURL
		case arg == "--chain":
			target = &g.chainID
		case strings.HasPrefix(arg, "--rpc="):
			g.rpcURL = strings.TrimPrefix(arg, "--rpc=")
			continue
		case strings.HasPrefix(arg, "--chain="):
			g.chainID = strings.TrimPrefix(arg, "--chain=")
			continue
		default:
			out = append(out, arg)
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %s", arg)
		}
		*target = args[i+1]
		i++
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: lockbox-cli [--rpc <url>] [--chain <id>] <command> [args]

Commands:
  keygen <keystore>                       create a signing key in a passphrase-protected keystore
  address <keystore>                      print the account address of a keystore
  probe-keygen                            create an X25519 request key pair
  share-hash <file>                       print the share commitment of a file
  seal-probe <publicKeyHex> <file>        encrypt a share to a request public key
  open-probe <publicKeyHex> <privateKeyHex> <ciphertext> <nonce> <mac>
  tx [--key <keystore>] [--nonce n] <op> <payload|@file>
  query <method> [params|@file]

The keystore passphrase is read from `+keyPassEnv+` or prompted for.
A bearer token for authenticated nodes is read from `+rpcTokenEnv+`.`)
}
