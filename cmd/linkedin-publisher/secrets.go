package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"syscall"

	"github.com/alexflint/linkedin-publisher/credentials"
	"golang.org/x/term"
)

const sealedSuffix = ".sealed"

func readPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("error reading passphrase: %w", err)
	}
	return passphrase, nil
}

func runSecrets(cmd *secretsArgs) error {
	passphrase, err := readPassphrase("Enter passphrase: ")
	if err != nil {
		return err
	}

	if len(cmd.Encrypt) > 0 {
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if !bytes.Equal(passphrase, again) {
			return errors.New("passphrases do not match")
		}
	}

	for _, path := range cmd.Encrypt {
		if err := process(path, path+sealedSuffix, passphrase, credentials.Seal); err != nil {
			return err
		}
	}
	for _, path := range cmd.Decrypt {
		if !strings.HasSuffix(path, sealedSuffix) {
			return fmt.Errorf("%s does not end with %s", path, sealedSuffix)
		}
		if err := process(path, strings.TrimSuffix(path, sealedSuffix), passphrase, credentials.Unseal); err != nil {
			return err
		}
	}
	return nil
}

func process(inpath, outpath string, passphrase []byte, f func([]byte, []byte) ([]byte, error)) error {
	in, err := ioutil.ReadFile(inpath)
	if err != nil {
		return err
	}

	out, err := f(in, passphrase)
	if err != nil {
		return fmt.Errorf("%s: %w", inpath, err)
	}

	if err := ioutil.WriteFile(outpath, out, 0600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outpath)
	return nil
}
