package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"lockboxchain/cmd/internal/passphrase"
	"lockboxchain/crypto"
)

// passphraseFn and keystoreOpts are swapped out in tests.
var (
	passphraseFn = func() (string, error) {
		return passphrase.NewSource(keyPassEnv, "Enter keystore passphrase: ").Get()
	}
	keystoreOpts []crypto.KeystoreOption
)

func runKeygen(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected a keystore path")
	}
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	pass, err := passphraseFn()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, pass, keystoreOpts...); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected a keystore path")
	}
	key, err := loadKey(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("keystore path required")
	}
	pass, err := passphraseFn()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return key, nil
}

func runProbeKeygen(stdout io.Writer) error {
	pair, err := crypto.GenerateProbeKeyPair()
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]string{
		"publicKey":  hex.EncodeToString(pair.Public),
		"privateKey": hex.EncodeToString(pair.Private),
	})
}

func runShareHash(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected a share file")
	}
	share, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, crypto.ShareHash(share))
	return nil
}

func runSealProbe(args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return errors.New("expected a public key and a share file")
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	share, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	sealed, err := crypto.SealProbe(pub, share)
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]string{
		"ciphertext": hex.EncodeToString(sealed.Ciphertext),
		"nonce":      hex.EncodeToString(sealed.Nonce),
		"mac":        hex.EncodeToString(sealed.MAC),
	})
}

func runOpenProbe(args []string, stdout io.Writer) error {
	if len(args) != 5 {
		return errors.New("expected public key, private key, ciphertext, nonce and mac")
	}
	decoded := make([][]byte, len(args))
	for i, arg := range args {
		b, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		decoded[i] = b
	}
	plain, err := crypto.OpenProbe(decoded[0], decoded[1], crypto.SealedProbe{
		Ciphertext: decoded[2],
		Nonce:      decoded[3],
		MAC:        decoded[4],
	})
	if err != nil {
		return err
	}
	_, err = stdout.Write(plain)
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
