// Package bitcoin implements the Bitcoin chain source: RPC access and
// decoding of node responses into the importer's domain model.
package bitcoin

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/chaingraph/chaingraph-backend/internal/graph/chain"
	"github.com/chaingraph/chaingraph-backend/internal/graph/model"
	"github.com/chaingraph/chaingraph-backend/pkg/safe"
)

// Decoder turns verbose block results into DecodedBlocks. Decoding is pure
// and deterministic; any malformed field surfaces as a chain.DecodeError.
type Decoder struct {
	params *chaincfg.Params
}

// NewDecoder initializes a decoder using the chain parameters of the given
// network name (mainnet, testnet3, regtest, signet).
func NewDecoder(network string) (*Decoder, error) {
	params, err := chainParamsForNetwork(network)
	if err != nil {
		return nil, err
	}
	return &Decoder{params: params}, nil
}

// Decode maps a verbose block into the importer's domain model.
func (d *Decoder) Decode(src *btcjson.GetBlockVerboseTxResult) (*model.DecodedBlock, error) {
	block, err := d.decode(src)
	if err != nil {
		height := uint64(0)
		if src.Height > 0 {
			height = uint64(src.Height)
		}
		return nil, &chain.DecodeError{Height: height, Hash: src.Hash, Err: err}
	}
	return block, nil
}

func (d *Decoder) decode(src *btcjson.GetBlockVerboseTxResult) (*model.DecodedBlock, error) {
	if src.Hash == "" {
		return nil, fmt.Errorf("block missing hash")
	}
	height, err := safe.Uint64(src.Height)
	if err != nil {
		return nil, fmt.Errorf("block height: %w", err)
	}
	size, err := safe.Uint32(src.Size)
	if err != nil {
		return nil, fmt.Errorf("block size: %w", err)
	}
	if len(src.Tx) == 0 {
		return nil, fmt.Errorf("block has no transactions")
	}

	block := &model.DecodedBlock{
		Hash:      src.Hash,
		Height:    height,
		Timestamp: time.Unix(src.Time, 0).UTC(),
		Size:      size,
		Txs:       make([]model.DecodedTx, 0, len(src.Tx)),
	}

	for _, tx := range src.Tx {
		decoded, err := d.decodeTx(tx)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.Txid, err)
		}
		block.Txs = append(block.Txs, decoded)
	}

	return block, nil
}

func (d *Decoder) decodeTx(tx btcjson.TxRawResult) (model.DecodedTx, error) {
	if tx.Txid == "" {
		return model.DecodedTx{}, fmt.Errorf("missing txid")
	}
	size, err := safe.Uint32(tx.Size)
	if err != nil {
		return model.DecodedTx{}, fmt.Errorf("size: %w", err)
	}
	if len(tx.Vin) == 0 {
		return model.DecodedTx{}, fmt.Errorf("no inputs")
	}
	if len(tx.Vout) == 0 {
		return model.DecodedTx{}, fmt.Errorf("no outputs")
	}

	decoded := model.DecodedTx{
		TxID:    tx.Txid,
		Size:    size,
		Inputs:  make([]model.DecodedInput, 0, len(tx.Vin)),
		Outputs: make([]model.DecodedOutput, 0, len(tx.Vout)),
	}

	for i, vin := range tx.Vin {
		if vin.IsCoinBase() {
			decoded.Inputs = append(decoded.Inputs, model.DecodedInput{IsCoinbase: true})
			continue
		}
		if vin.Txid == "" {
			return model.DecodedTx{}, fmt.Errorf("input %d missing prev txid", i)
		}
		decoded.Inputs = append(decoded.Inputs, model.DecodedInput{
			PrevTxID: vin.Txid,
			PrevVout: vin.Vout,
		})
	}

	for _, vout := range tx.Vout {
		value, err := btcToSatoshis(vout.Value)
		if err != nil {
			return model.DecodedTx{}, fmt.Errorf("output %d value: %w", vout.N, err)
		}
		addresses, err := d.decodeAddresses(vout)
		if err != nil {
			return model.DecodedTx{}, fmt.Errorf("output %d script: %w", vout.N, err)
		}
		decoded.Outputs = append(decoded.Outputs, model.DecodedOutput{
			Index:     vout.N,
			Value:     value,
			Addresses: addresses,
		})
	}

	return decoded, nil
}

// decodeAddresses extracts destination addresses from a scriptPubKey result,
// falling back to script decoding when the node omits the address fields.
func (d *Decoder) decodeAddresses(vout btcjson.Vout) ([]string, error) {
	if len(vout.ScriptPubKey.Addresses) > 0 {
		return append([]string(nil), vout.ScriptPubKey.Addresses...), nil
	}
	if vout.ScriptPubKey.Address != "" {
		return []string{vout.ScriptPubKey.Address}, nil
	}
	if vout.ScriptPubKey.Hex == "" {
		return nil, nil
	}

	scriptBytes, err := hex.DecodeString(vout.ScriptPubKey.Hex)
	if err != nil {
		return nil, err
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(scriptBytes, d.params)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, addr.EncodeAddress())
	}
	return result, nil
}

// btcToSatoshis converts a BTC amount to satoshis with overflow checks.
func btcToSatoshis(value float64) (uint64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, err
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative amount: %d", amt)
	}
	return safe.Uint64(int64(amt))
}

func chainParamsForNetwork(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "main", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}
