// Package crypt implements the two ChaCha20 conventions used by the resource
// cache: self-keyed blobs carrying their own nonce under a fixed key, and
// resource-keyed payloads whose key and nonce come from a descriptor.
//
// Neither convention authenticates its input. A wrong key or nonce silently
// produces garbage; callers detect that through format checks or digests.
package crypt

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

const (
	KeySize = 32
	IVSize  = 8
)

// selfKey is the key the client uses for every self-keyed file.
var selfKey = [KeySize]byte{
	0xD3, 0x61, 0x57, 0x17, 0xE2, 0x16, 0x3F, 0x70, 0xAC, 0x69, 0x51, 0xB2, 0x7D, 0x7A, 0x0B, 0x86,
	0xD8, 0xE9, 0x3E, 0x16, 0xEA, 0xBF, 0x63, 0x2F, 0xDF, 0xBC, 0xC0, 0x0A, 0x1D, 0x3D, 0x62, 0xD6,
}

// ErrShortCiphertext is returned when a self-keyed buffer cannot hold its IV.
var ErrShortCiphertext = errors.New("ciphertext shorter than its IV")

// xorKeyStream applies the classic 64-bit-nonce ChaCha20 keystream to src.
//
// The IETF construction keeps a 32-bit counter in state word 12 and the nonce
// in words 13-15. Placing four zero bytes ahead of the 8-byte nonce puts zero
// in word 13, which is exactly the high half of the original 64-bit counter.
// The two keystreams agree for the first 2^32 blocks (256 GiB).
func xorKeyStream(key *[KeySize]byte, iv *[IVSize]byte, dst, src []byte) {
	var nonce [chacha20.NonceSize]byte
	copy(nonce[4:], iv[:])
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed by the array types.
		panic(fmt.Sprintf("crypt: %v", err))
	}
	c.XORKeyStream(dst, src)
}

// DecryptWithKey decrypts a resource-keyed payload. The output has the same
// length as the input.
func DecryptWithKey(src []byte, key [KeySize]byte, iv [IVSize]byte) []byte {
	out := make([]byte, len(src))
	xorKeyStream(&key, &iv, out, src)
	return out
}

// EncryptWithKey encrypts a payload with a descriptor's key and IV. It is the
// same transform as DecryptWithKey.
func EncryptWithKey(src []byte, key [KeySize]byte, iv [IVSize]byte) []byte {
	return DecryptWithKey(src, key, iv)
}

// DecryptSelfKeyed strips the leading IV from src and decrypts the remainder
// with the fixed key. The IV is returned so the blob can be re-encrypted
// byte-for-byte later.
func DecryptSelfKeyed(src []byte) ([]byte, [IVSize]byte, error) {
	var iv [IVSize]byte
	if len(src) < IVSize {
		return nil, iv, fmt.Errorf("%w: %d bytes", ErrShortCiphertext, len(src))
	}
	copy(iv[:], src[:IVSize])
	out := make([]byte, len(src)-IVSize)
	xorKeyStream(&selfKey, &iv, out, src[IVSize:])
	return out, iv, nil
}

// EncryptSelfKeyed encrypts src with the fixed key and prepends the IV. A nil
// iv draws a fresh random one; passing the IV captured by DecryptSelfKeyed
// reproduces the original blob for unchanged content.
func EncryptSelfKeyed(src []byte, iv *[IVSize]byte) ([]byte, error) {
	var nonce [IVSize]byte
	if iv != nil {
		nonce = *iv
	} else if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	out := make([]byte, IVSize+len(src))
	copy(out, nonce[:])
	xorKeyStream(&selfKey, &nonce, out[IVSize:], src)
	return out, nil
}
