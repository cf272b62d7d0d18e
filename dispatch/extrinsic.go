package dispatch

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/resolver"
	"github.com/wippyai/subscript/scale"
	"github.com/wippyai/subscript/transport"
	"github.com/wippyai/subscript/types"
)

const (
	extrinsicVersion = 4
	signedFlag       = 0x80

	// Signing payloads longer than this are hashed first.
	maxPayload = 256
)

// Signer produces signatures for one account. Key handling is the
// caller's concern.
type Signer interface {
	AccountID() []byte
	// Sign returns a value of the ExtrinsicSignature type, e.g.
	// codec.Variant("Sr25519", codec.Bytes(sig)).
	Sign(payload []byte) (codec.Value, error)
}

// SignOptions adjusts the signed extensions. The zero value signs an
// immortal transaction with no tip and a reserved nonce.
type SignOptions struct {
	// Nonce bypasses reservation when set.
	Nonce *uint64
	Tip   uint64
	// Era is codec.Immortal() when unset. A mortal era needs EraBlock, the
	// hash of the block it is anchored at.
	Era      codec.Value
	EraBlock []byte
	// Genesis overrides the hash read from the transport.
	Genesis []byte
}

// Extrinsic is an encoded transaction ready for submission.
type Extrinsic struct {
	Bytes []byte
	// Hash is blake2_256 of Bytes, the hash the node reports.
	Hash []byte
	Call *resolver.CallPayload

	Signed  bool
	Account []byte
	Nonce   uint64
	// reserved is set when Nonce came from the session's registry.
	reserved bool
}

func newExtrinsic(body []byte, call *resolver.CallPayload) *Extrinsic {
	w := scale.NewWriter()
	w.WriteCompactU64(uint64(len(body)))
	w.WriteBytes(body)
	xt := w.Bytes()
	return &Extrinsic{Bytes: xt, Hash: hashing.Blake2b256(xt), Call: call}
}

func checkVersion(md *metadata.Metadata) error {
	if md.Extrinsic.Version != extrinsicVersion {
		return errors.Unsupported(errors.PhaseDispatch, "extrinsic version "+strconv.Itoa(int(md.Extrinsic.Version)))
	}
	return nil
}

// UnsignedExtrinsic wraps a call as an unsigned transaction.
func (s *Session) UnsignedExtrinsic(call *resolver.CallPayload) (*Extrinsic, error) {
	if err := checkVersion(s.Metadata()); err != nil {
		return nil, err
	}
	body := append([]byte{extrinsicVersion}, call.Bytes()...)
	return newExtrinsic(body, call), nil
}

// SignedExtrinsic signs call for signer. Unless opts.Nonce is set, a
// nonce is reserved and returned to the registry if signing fails.
func (s *Session) SignedExtrinsic(ctx context.Context, signer Signer, call *resolver.CallPayload, opts SignOptions) (*Extrinsic, error) {
	snap := s.current()
	if err := checkVersion(snap.md); err != nil {
		return nil, err
	}
	account := signer.AccountID()

	p := extensionParams{tip: opts.Tip, era: opts.Era, eraBlock: opts.EraBlock, genesis: opts.Genesis}
	if p.era.IsUnit() {
		p.era = codec.Immortal()
	}
	if p.genesis == nil {
		g, err := s.GenesisHash(ctx)
		if err != nil {
			return nil, err
		}
		p.genesis = g
	}
	if isImmortal(p.era) {
		p.eraBlock = p.genesis
	} else if len(p.eraBlock) == 0 {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "mortal era without an anchor block hash")
	}

	reserved := opts.Nonce == nil
	if reserved {
		n, err := s.ReserveNonce(ctx, account)
		if err != nil {
			return nil, err
		}
		p.nonce = n
	} else {
		p.nonce = *opts.Nonce
	}

	xt, err := s.sign(snap, signer, call, p)
	if err != nil {
		if reserved {
			s.nonces.Release(account, p.nonce, false)
		}
		return nil, err
	}
	xt.reserved = reserved
	s.logger.Debug("signed extrinsic",
		zap.String("call", call.Meta().FullName()),
		zap.Uint64("nonce", p.nonce),
		zap.Int("len", len(xt.Bytes)))
	return xt, nil
}

func (s *Session) sign(snap *snapshot, signer Signer, call *resolver.CallPayload, p extensionParams) (*Extrinsic, error) {
	c := snap.md.Codec()
	extra, additional, err := signedExtensions(snap.md, snap.version, p)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, call.Len()+len(extra)+len(additional))
	payload = append(payload, call.Bytes()...)
	payload = append(payload, extra...)
	payload = append(payload, additional...)
	if len(payload) > maxPayload {
		payload = hashing.Blake2b256(payload)
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindInvalidInput, err, "sign")
	}

	account := signer.AccountID()
	w := scale.NewWriter()
	w.Byte(signedFlag | extrinsicVersion)
	if err := c.EncodeTo(w, "Address", address(c.Registry(), account)); err != nil {
		return nil, err
	}
	if err := c.EncodeTo(w, "ExtrinsicSignature", sig); err != nil {
		return nil, err
	}
	w.WriteBytes(extra)
	w.WriteBytes(call.Bytes())

	xt := newExtrinsic(w.Bytes(), call)
	xt.Signed, xt.Account, xt.Nonce = true, account, p.nonce
	return xt, nil
}

// address wraps an account id for the runtime's Address type, which is
// either an enum with an Id variant or the id itself.
func address(reg *types.Registry, account []byte) codec.Value {
	if def, err := reg.Underlying("Address"); err == nil && def.Kind == types.KindEnum {
		return codec.Variant("Id", codec.Bytes(account))
	}
	return codec.Bytes(account)
}

func isImmortal(era codec.Value) bool {
	switch era.Kind {
	case codec.KindUnit:
		return true
	case codec.KindText:
		return era.Text == "Immortal"
	case codec.KindEnum:
		if era.Name != "" {
			return era.Name == "Immortal"
		}
		return era.Index == 0
	}
	return false
}

type extensionParams struct {
	nonce    uint64
	tip      uint64
	era      codec.Value
	eraBlock []byte
	genesis  []byte
}

// signedExtensions encodes the extra data carried in the extrinsic and the
// additional data only signed over, walking the runtime's extension list
// in order.
func signedExtensions(md *metadata.Metadata, rv transport.RuntimeVersion, p extensionParams) (extra, additional []byte, err error) {
	c := md.Codec()
	xw, aw := scale.NewWriter(), scale.NewWriter()
	for _, ext := range md.Extrinsic.SignedExtensions {
		switch ext.Identifier {
		case "CheckSpecVersion":
			aw.WriteU32(rv.SpecVersion)
		case "CheckTxVersion":
			aw.WriteU32(rv.TransactionVersion)
		case "CheckGenesis":
			aw.WriteBytes(p.genesis)
		case "CheckMortality", "CheckEra":
			if err := c.EncodeTo(xw, "ExtrinsicEra", p.era); err != nil {
				return nil, nil, err
			}
			aw.WriteBytes(p.eraBlock)
		case "CheckNonce":
			xw.WriteCompactU64(p.nonce)
		case "ChargeTransactionPayment":
			xw.WriteCompactU64(p.tip)
		case "ChargeAssetTxPayment":
			xw.WriteCompactU64(p.tip)
			xw.Byte(0)
		case "CheckWeight", "CheckNonZeroSender", "CheckBlockGasLimit":
		default:
			if !emptyExtension(md.Registry(), ext) {
				return nil, nil, errors.Unsupported(errors.PhaseDispatch, "signed extension "+ext.Identifier)
			}
		}
	}
	return xw.Bytes(), aw.Bytes(), nil
}

// emptyExtension reports whether a portable extension carries no data.
// Legacy metadata has no extension types, so unknown ones are never
// empty.
func emptyExtension(reg *types.Registry, ext metadata.SignedExtension) bool {
	if ext.Type == "" {
		return false
	}
	return zeroSized(reg, ext.Type) && zeroSized(reg, ext.AdditionalSigned)
}

func zeroSized(reg *types.Registry, name string) bool {
	def, err := reg.Underlying(name)
	if err != nil {
		return false
	}
	switch def.Kind {
	case types.KindTuple:
		return len(def.Elems) == 0
	case types.KindStruct:
		return len(def.Fields) == 0
	}
	return false
}

// ReserveNonce reserves the next nonce of account, loading it from
// System.Account on first use.
func (s *Session) ReserveNonce(ctx context.Context, account []byte) (uint64, error) {
	return s.nonces.Reserve(ctx, account, func(ctx context.Context) (uint64, error) {
		return s.AccountNonce(ctx, account)
	})
}

// AccountNonce reads the on-chain nonce of account.
func (s *Session) AccountNonce(ctx context.Context, account []byte) (uint64, error) {
	e, err := s.Storage(ctx, "System", "Account", codec.Bytes(account))
	if err != nil {
		return 0, err
	}
	n, ok := e.Value.Get("nonce").Uint64()
	if !ok {
		return 0, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			TypeName("AccountInfo").Detail("account info has no integer nonce").Build()
	}
	return n, nil
}
