// Package trust implements C3: gathering the trusted OpenPGP certificate set
// from a rootfs and verifying InRelease (clear-signed) and Release+Release.gpg
// (detached) signatures against it, generalizing
// oma-repo-verify/src/lib.rs's InReleaseVerifier into Go on top of
// github.com/ProtonMail/go-crypto/openpgp.
package trust

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aosc-dev/omacore/omaerr"
)

// SignerKind distinguishes the two ways a repository can pin its own signing
// key (Debian deb822's Signed-By field), mirroring oma_apt_sources_lists::Signature.
type SignerKind int

const (
	// SignerNone means: fall back to the rootfs trust store.
	SignerNone SignerKind = iota
	// SignerKeyPath pins one or more certificate file paths.
	SignerKeyPath
	// SignerKeyBlock pins an inline ASCII-armored key block.
	SignerKeyBlock
)

// Signer is the sum type backing deb822 Signed-By: either absent, a set of
// key-file paths, or an inline key block.
type Signer struct {
	Kind  SignerKind
	Paths []string
	Block string
}

// Store resolves the certificate set for a given rootfs, mirroring
// find_certs's search order: etc/apt/trusted.gpg.d/*.{gpg,asc},
// etc/apt/keyrings/*, etc/apt/trusted.gpg.
type Store struct {
	Rootfs string
}

// NewStore returns a Store rooted at rootfs ("/" for the live system).
func NewStore(rootfs string) *Store {
	return &Store{Rootfs: rootfs}
}

// FindCerts resolves the certificate file paths (and, when the signer pins an
// inline key block, that block) to use for verifying one repository's
// signature. When signer is nil or SignerNone, it searches the rootfs trust
// directories; trusted.gpg.d must exist, keyrings/ is optional.
func (s *Store) FindCerts(signer *Signer) (paths []string, keyBlock string, err error) {
	trustedDir := filepath.Join(s.Rootfs, "etc/apt/trusted.gpg.d")
	entries, direrr := os.ReadDir(trustedDir)
	if direrr != nil {
		return nil, "", omaerr.Wrap(omaerr.TrustStoreMissing, "does not exist: etc/apt/trusted.gpg.d", direrr)
	}

	keyringEntries, _ := os.ReadDir(filepath.Join(s.Rootfs, "etc/apt/keyrings"))

	if signer != nil && signer.Kind == SignerKeyBlock {
		return nil, signer.Block, nil
	}
	if signer != nil && signer.Kind == SignerKeyPath {
		var out []string
		for _, p := range signer.Paths {
			if filepath.IsAbs(p) {
				out = append(out, p)
			} else {
				out = append(out, filepath.Join(trustedDir, p))
			}
		}
		return out, "", nil
	}

	var certs []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".gpg" || ext == ".asc" {
			certs = append(certs, filepath.Join(trustedDir, e.Name()))
		}
	}
	for _, e := range keyringEntries {
		if !e.IsDir() {
			certs = append(certs, filepath.Join(s.Rootfs, "etc/apt/keyrings", e.Name()))
		}
	}

	trustMain := filepath.Join(s.Rootfs, "etc/apt/trusted.gpg")
	if fi, statErr := os.Stat(trustMain); statErr == nil && !fi.IsDir() {
		certs = append(certs, trustMain)
	}

	return certs, "", nil
}
