package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EIP712Domain(string name,uint256 chainId,address verifyingContract)
var eip712DomainTypeHash = ethcrypto.Keccak256(
	[]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"),
)

const domainName = "UniswapX"

// OrderHash identifies an order by the keccak256 of its encoded bytes. It is
// the dedupe key and the primary key of stored orders.
func OrderHash(encodedOrder []byte) common.Hash {
	return ethcrypto.Keccak256Hash(encodedOrder)
}

// Signer produces swapper signatures over encoded orders. It backs the
// encodeorder tool and test fixtures; the service itself never signs.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder signs the order hash of encodedOrder under the reactor's EIP-712
// domain on chainID. The signature is r || s || v with v in {27,28}.
func (s *Signer) SignOrder(encodedOrder []byte, chainID int64, reactor common.Address) ([]byte, error) {
	digest := OrderDigest(encodedOrder, chainID, reactor)
	sig, err := ethcrypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// OrderDigest returns the EIP-712 digest signed by SignOrder:
//
//	keccak256("\x19\x01" || domainSeparator || orderHash)
func OrderDigest(encodedOrder []byte, chainID int64, reactor common.Address) common.Hash {
	domainSep := ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(domainName)),
		common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32),
		common.LeftPadBytes(reactor.Bytes(), 32),
	)
	return ethcrypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep, OrderHash(encodedOrder).Bytes())
}

// RecoverSigner returns the address that produced sig over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
