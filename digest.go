package ewf

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// Digest is the abstract byte-stream digest spec §1 scopes out as an
// external collaborator ("abstract Digest trait with update/finalize").
// This module ships a working stdlib-backed default so the §8 S-1/S-3
// scenarios (which assert concrete MD5/SHA-1 values) are runnable without a
// caller-supplied implementation.
type Digest interface {
	Update(p []byte)
	Finalize() []byte
}

type hashDigest struct{ h hash.Hash }

func (d hashDigest) Update(p []byte)   { d.h.Write(p) }
func (d hashDigest) Finalize() []byte  { return d.h.Sum(nil) }

// NewMD5Digest returns the default MD5 Digest implementation.
func NewMD5Digest() Digest { return hashDigest{h: md5.New()} }

// NewSHA1Digest returns the default SHA-1 Digest implementation.
func NewSHA1Digest() Digest { return hashDigest{h: sha1.New()} }

// digestSet tracks the running digests a write handle accumulates over the
// media stream, emitted into hash/digest sections at finalize time per
// spec §4.6's finalize event.
type digestSet struct {
	md5  Digest
	sha1 Digest
}

func newDigestSet() *digestSet {
	return &digestSet{md5: NewMD5Digest(), sha1: NewSHA1Digest()}
}

func (d *digestSet) update(p []byte) {
	d.md5.Update(p)
	d.sha1.Update(p)
}
