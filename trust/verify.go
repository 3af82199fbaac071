package trust

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/aosc-dev/omacore/omaerr"
)

// VerifyClearSigned verifies an InRelease-style clear-signed document and
// returns the recovered plaintext on success. When trusted is true
// (deb822's [trusted=yes]), verification is skipped entirely and only the
// cleartext is recovered, mirroring InReleaseVerifier.check's early return.
func (s *Store) VerifyClearSigned(data []byte, signer *Signer, trusted bool) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, omaerr.New(omaerr.SignatureInvalid, "malformed PGP signature, InRelease must be signed")
	}
	if trusted {
		return block.Bytes, nil
	}

	keyring, err := s.loadSignerKeyring(signer)
	if err != nil {
		return nil, err
	}

	sigData, err := io.ReadAll(block.ArmoredSignature.Body)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.ReadDecryptedFailed, "failed to read decoded InRelease file", err)
	}
	sigs, err := readSignaturePackets(bytes.NewReader(sigData))
	if err != nil {
		return nil, omaerr.Wrap(omaerr.BadSignatureStructure, "malformed PGP signature, InRelease must be signed", err)
	}
	if err := verifySignatureGroup(keyring, block.Bytes, sigs); err != nil {
		return nil, err
	}
	return block.Bytes, nil
}

// VerifyDetached verifies a Release file against a detached Release.gpg
// signature, the non-inline counterpart to VerifyClearSigned used when a
// repository ships Release+Release.gpg instead of InRelease.
func (s *Store) VerifyDetached(release []byte, detachedSig []byte, signer *Signer, trusted bool) error {
	if trusted {
		return nil
	}

	keyring, err := s.loadSignerKeyring(signer)
	if err != nil {
		return err
	}

	r, err := armoredOrRawReader(detachedSig)
	if err != nil {
		return omaerr.Wrap(omaerr.BadSignatureStructure, "malformed PGP signature, Release must be signed", err)
	}
	sigs, err := readSignaturePackets(r)
	if err != nil {
		return omaerr.Wrap(omaerr.BadSignatureStructure, "malformed PGP signature, Release must be signed", err)
	}
	return verifySignatureGroup(keyring, release, sigs)
}

func (s *Store) loadSignerKeyring(signer *Signer) (openpgp.EntityList, error) {
	paths, keyBlock, err := s.FindCerts(signer)
	if err != nil {
		return nil, err
	}
	return loadKeyring(paths, keyBlock)
}

// verifySignatureGroup implements the signature-group accumulator from
// InReleaseVerifier.check: classify every signature as a success, a
// missing-key failure, or any other failure; the group is accepted iff at
// least one signature verified and no signature hit a non-missing-key
// failure.
func verifySignatureGroup(keyring openpgp.EntityList, content []byte, sigs []*packet.Signature) error {
	if len(sigs) == 0 {
		return omaerr.New(omaerr.SignatureInvalid, "malformed PGP signature, InRelease must be signed")
	}

	hasSuccess := false
	var otherErr error
	var missingKeyErr error

	for _, sig := range sigs {
		key := findSignerKey(keyring, sig)
		if key == nil {
			missingKeyErr = fmt.Errorf("missing key %s", issuerString(sig))
			continue
		}
		h := sig.Hash.New()
		h.Write(content)
		if err := key.VerifySignature(h, sig); err != nil {
			otherErr = err
			continue
		}
		hasSuccess = true
	}

	if otherErr != nil {
		return omaerr.Wrap(omaerr.SignatureInvalid, "InRelease contains bad signature", otherErr)
	}
	if !hasSuccess {
		if missingKeyErr != nil {
			return omaerr.Wrap(omaerr.SignatureInvalid, "InRelease contains bad signature", missingKeyErr)
		}
		return omaerr.New(omaerr.SignatureInvalid, "InRelease contains bad signature")
	}
	return nil
}

func findSignerKey(keyring openpgp.EntityList, sig *packet.Signature) *packet.PublicKey {
	for _, ent := range keyring {
		if ent.PrimaryKey != nil && keyMatchesSignature(ent.PrimaryKey, sig) {
			return ent.PrimaryKey
		}
		for _, sk := range ent.Subkeys {
			if sk.PublicKey != nil && keyMatchesSignature(sk.PublicKey, sig) {
				return sk.PublicKey
			}
		}
	}
	return nil
}

func keyMatchesSignature(pk *packet.PublicKey, sig *packet.Signature) bool {
	return sig.IssuerKeyId != nil && pk.KeyId == *sig.IssuerKeyId
}

func issuerString(sig *packet.Signature) string {
	if sig.IssuerKeyId != nil {
		return fmt.Sprintf("%016X", *sig.IssuerKeyId)
	}
	return "unknown"
}

func loadKeyring(paths []string, keyBlock string) (openpgp.EntityList, error) {
	var all openpgp.EntityList
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, omaerr.Wrap(omaerr.CertParseFile, fmt.Sprintf("can't parse certificate %s", p), err)
		}
		ents, err := parseKeyringBytes(data)
		if err != nil {
			return nil, omaerr.Wrap(omaerr.BadCertFile, fmt.Sprintf("cert file is bad: %s", p), err)
		}
		all = append(all, ents...)
	}
	if keyBlock != "" {
		// A literal '.' marks a line continuation in the deb822 inline
		// key-block text format; strip it before parsing.
		clean := stripDots(keyBlock)
		ents, err := parseKeyringBytes([]byte(clean))
		if err != nil {
			return nil, omaerr.Wrap(omaerr.BadCertFile, "cert file is bad: inline key block", err)
		}
		all = append(all, ents...)
	}
	return all, nil
}

func stripDots(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			b = append(b, s[i])
		}
	}
	return string(b)
}

func parseKeyringBytes(data []byte) (openpgp.EntityList, error) {
	if looksArmored(data) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func armoredOrRawReader(data []byte) (io.Reader, error) {
	if looksArmored(data) {
		block, err := armor.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return block.Body, nil
	}
	return bytes.NewReader(data), nil
}

func readSignaturePackets(r io.Reader) ([]*packet.Signature, error) {
	pr := packet.NewReader(r)
	var sigs []*packet.Signature
	for {
		p, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if sig, ok := p.(*packet.Signature); ok {
			sigs = append(sigs, sig)
		}
	}
	return sigs, nil
}

func looksArmored(data []byte) bool {
	n := len(data)
	if n > 64 {
		n = 64
	}
	return bytes.Contains(data[:n], []byte("-----BEGIN PGP"))
}
