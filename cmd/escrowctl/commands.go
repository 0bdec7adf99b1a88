package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/token"
	"escrowchain/rpc"
)

const requestTimeout = 30 * time.Second

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) keygen(args []string) error {
	fs := a.newFlagSet("keygen")
	out := fs.String("out", "", "path of the keystore to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}
	pass, err := a.pass()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key.Address().String())
	return nil
}

func (a *app) address(args []string) error {
	fs := a.newFlagSet("address")
	keystore := fs.String("keystore", "", "keystore path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := a.loadKey(*keystore)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key.Address().String())
	return nil
}

type derivedAddresses struct {
	Mint    crypto.Address  `json:"mint"`
	Escrow  crypto.Address  `json:"escrow"`
	Bump    uint8           `json:"bump"`
	Custody crypto.Address  `json:"custody"`
	Job     *crypto.Address `json:"job,omitempty"`
}

// derive works offline from the program ids.
func (a *app) derive(args []string) error {
	fs := a.newFlagSet("derive")
	mintFlag := fs.String("mint", "", "token mint")
	authorityFlag := fs.String("authority", "", "optional job authority")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	out := derivedAddresses{Mint: mint, Escrow: addrs.Escrow, Bump: addrs.Bump, Custody: addrs.Custody}
	if strings.TrimSpace(*authorityFlag) != "" {
		authority, err := crypto.ParseAddress(*authorityFlag)
		if err != nil {
			return fmt.Errorf("invalid --authority: %w", err)
		}
		job, _, err := escrow.FindJobAddress(a.escrowID, addrs.Escrow, authority)
		if err != nil {
			return err
		}
		out.Job = &job
	}
	return a.printJSON(out)
}

func (a *app) initEscrow(args []string) error {
	fs := a.newFlagSet("init-escrow")
	keystore := fs.String("keystore", "", "keystore of the fee payer")
	mintFlag := fs.String("mint", "", "token mint")
	ownerFlag := fs.String("owner", "", "escrow owner (defaults to the payer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	payer, err := a.loadKey(*keystore)
	if err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	owner := payer.Address()
	if strings.TrimSpace(*ownerFlag) != "" {
		if owner, err = crypto.ParseAddress(*ownerFlag); err != nil {
			return fmt.Errorf("invalid --owner: %w", err)
		}
	}
	ixs, addrs, err := escrow.NewSetupEscrowInstructions(a.escrowID, payer.Address(), mint, a.tokenID, owner)
	if err != nil {
		return err
	}
	if err := a.submit([]*crypto.PrivateKey{payer}, ixs...); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "escrow %s custody %s\n", addrs.Escrow, addrs.Custody)
	return nil
}

func (a *app) setOwner(args []string) error {
	fs := a.newFlagSet("set-owner")
	keystore := fs.String("keystore", "", "keystore of the current escrow owner")
	mintFlag := fs.String("mint", "", "token mint")
	newOwnerFlag := fs.String("new-owner", "", "new escrow owner")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := a.loadKey(*keystore)
	if err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	newOwner, err := parseRequired("new-owner", *newOwnerFlag)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	return a.submit([]*crypto.PrivateKey{owner},
		escrow.NewSetEscrowOwnerInstruction(a.escrowID, addrs.Escrow, owner.Address(), newOwner))
}

func (a *app) fund(args []string) error {
	fs := a.newFlagSet("fund")
	keystore := fs.String("keystore", "", "keystore of the depositor")
	mintFlag := fs.String("mint", "", "token mint")
	sourceFlag := fs.String("source", "", "source token account (defaults to the depositor's associated account)")
	amount := fs.Uint64("amount", 0, "amount in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	depositor, err := a.loadKey(*keystore)
	if err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	source, err := a.tokenAccountOr(*sourceFlag, depositor.Address(), mint)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	job, _, err := escrow.FindJobAddress(a.escrowID, addrs.Escrow, depositor.Address())
	if err != nil {
		return err
	}
	// The depositor pays for the job record on the first deposit.
	fundIx := escrow.NewFundJobInstruction(a.escrowID, source, addrs.Custody, addrs.Escrow, job,
		depositor.Address(), mint, a.tokenID, *amount)
	return a.submit([]*crypto.PrivateKey{depositor}, escrow.WithRentPayer(fundIx, depositor.Address()))
}

func (a *app) disburse(args []string) error {
	fs := a.newFlagSet("disburse")
	keystore := fs.String("keystore", "", "keystore of the escrow owner")
	mintFlag := fs.String("mint", "", "token mint")
	authorityFlag := fs.String("authority", "", "authority of the job to draw from")
	destinationFlag := fs.String("destination", "", "destination token account (defaults to the authority's associated account)")
	amount := fs.Uint64("amount", 0, "amount in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := a.loadKey(*keystore)
	if err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	authority, err := parseRequired("authority", *authorityFlag)
	if err != nil {
		return err
	}
	destination, err := a.tokenAccountOr(*destinationFlag, authority, mint)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	job, _, err := escrow.FindJobAddress(a.escrowID, addrs.Escrow, authority)
	if err != nil {
		return err
	}
	return a.submit([]*crypto.PrivateKey{owner},
		escrow.NewDisburseFundsInstruction(a.escrowID, addrs.Custody, destination, addrs.Escrow, job,
			owner.Address(), mint, a.tokenID, *amount))
}

func (a *app) showEscrow(args []string) error {
	fs := a.newFlagSet("escrow")
	mintFlag := fs.String("mint", "", "token mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	view, err := a.client.Escrow(ctx, addrs.Escrow)
	if err != nil {
		return err
	}
	return a.printJSON(view)
}

func (a *app) showJob(args []string) error {
	fs := a.newFlagSet("job")
	mintFlag := fs.String("mint", "", "token mint")
	authorityFlag := fs.String("authority", "", "job authority")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseRequired("mint", *mintFlag)
	if err != nil {
		return err
	}
	authority, err := parseRequired("authority", *authorityFlag)
	if err != nil {
		return err
	}
	addrs, err := escrow.DeriveAddresses(a.escrowID, mint, a.tokenID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	view, err := a.client.Job(ctx, addrs.Escrow, authority)
	if err != nil {
		return err
	}
	return a.printJSON(view)
}

// submit signs ixs with signers, the first paying fees, and reports the
// receipt. A unique nonce is taken from the clock.
func (a *app) submit(signers []*crypto.PrivateKey, ixs ...types.Instruction) error {
	tx := types.NewTransaction(signers[0].Address(), uint64(time.Now().UnixNano()), ixs...)
	if err := tx.Sign(signers...); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	receipt, err := a.client.SubmitTransaction(ctx, tx)
	if err != nil {
		var apiErr *rpc.APIError
		if errors.As(err, &apiErr) {
			if code, ok := apiErr.EscrowCode(); ok {
				return fmt.Errorf("%s (escrow error %d)", apiErr.Message, code.Code())
			}
		}
		return err
	}
	fmt.Fprintf(a.stdout, "committed %s\n", receipt.Hash)
	for _, evt := range receipt.Events {
		fmt.Fprintf(a.stdout, "  %s %v\n", evt.Type, evt.Attributes)
	}
	return nil
}

func (a *app) loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--keystore is required")
	}
	pass, err := a.pass()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", path, err)
	}
	return key, nil
}

func (a *app) tokenAccountOr(explicit string, owner, mint crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(explicit) != "" {
		return crypto.ParseAddress(explicit)
	}
	addr, _, err := token.FindAssociatedAddress(a.tokenID, owner, mint)
	return addr, err
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseRequired(name, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return addr, nil
}
