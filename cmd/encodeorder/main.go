// Command encodeorder builds a signed sample order and prints it as a
// POST /api/orders request body, for exercising the API by hand.
//
//	encodeorder -type Dutch_V2 -chain 1 -key 0x...
//	encodeorder -seal key.json -key 0x...   (passphrase from UNISWAPX_KEY_PASSPHRASE)
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/security-alliance/uniswapx-service/internal/crypto"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

func main() {
	orderType := flag.String("type", "Dutch", "order type: Dutch, Limit, Dutch_V2, Relay")
	chainID := flag.Int64("chain", orders.ChainMainnet, "chain id")
	reactor := flag.String("reactor", "", "reactor address (defaults to the registered one)")
	key := flag.String("key", os.Getenv("UNISWAPX_SIGNER_KEY"), "hex private key")
	keyFile := flag.String("keyfile", "", "sealed key file")
	seal := flag.String("seal", "", "write the signing key to this sealed key file and exit")
	legacy := flag.Bool("legacy", false, "omit orderType from the request body")
	nonce := flag.Int64("nonce", time.Now().UnixNano(), "order nonce")
	flag.Parse()

	if err := run(*orderType, *chainID, *reactor, *key, *keyFile, *seal, *legacy, *nonce); err != nil {
		fmt.Fprintf(os.Stderr, "encodeorder: %v\n", err)
		os.Exit(1)
	}
}

func run(orderType string, chainID int64, reactor, key, keyFile, seal string, legacy bool, nonce int64) error {
	passphrase := os.Getenv("UNISWAPX_KEY_PASSPHRASE")

	var signer *crypto.Signer
	var err error
	if key == "" && keyFile == "" {
		signer, err = crypto.GenerateSigner()
		fmt.Fprintln(os.Stderr, "encodeorder: no key given, using a throwaway signer")
	} else {
		signer, err = crypto.LoadSigner(key, keyFile, passphrase)
	}
	if err != nil {
		return err
	}

	if seal != "" {
		data, err := crypto.SealKey(signer, passphrase)
		if err != nil {
			return err
		}
		if err := os.WriteFile(seal, data, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "encodeorder: sealed key for %s written to %s\n", signer.Address().Hex(), seal)
		return nil
	}

	p := sampleParams{
		Type:    orderType,
		ChainID: chainID,
		Swapper: signer.Address(),
		Nonce:   big.NewInt(nonce),
		Now:     time.Now(),
	}
	if reactor != "" {
		if !common.IsHexAddress(reactor) {
			return fmt.Errorf("invalid reactor address %q", reactor)
		}
		p.Reactor = common.HexToAddress(reactor)
	}

	encoded, reactorAddr, err := buildSample(orders.DefaultRegistry(), p)
	if err != nil {
		return err
	}
	sig, err := signer.SignOrder(encoded, chainID, reactorAddr)
	if err != nil {
		return err
	}

	req := orders.SubmissionRequest{
		EncodedOrder: hexutil.Encode(encoded),
		Signature:    hexutil.Encode(sig),
		ChainID:      chainID,
	}
	if !legacy {
		req.OrderType = orderType
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "encodeorder: order hash %s\n", crypto.OrderHash(encoded).Hex())
	return nil
}
