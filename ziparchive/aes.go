/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package ziparchive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"

	"golang.org/x/crypto/pbkdf2"

	liberr "github.com/nabbar/parazip/errors"
)

// Entry encryption wraps an already-deflated per-file byte stream with
// AES-256-GCM, keyed by PBKDF2(password, per-entry salt). It is a private
// container extension (see privateExtraFieldID in archive.go), not a
// WinZip AE-x implementation: only this package's own extractor can open
// entries written this way. The deflate bytes are encrypted as a single
// unit after block-compression and CRC-combine complete, matching the
// container's "set_entry_encryption" hook firing once per entry rather
// than per block.
const (
	aesSaltSize      = 16
	aesNonceSize     = 12
	aesKeySize       = 32
	pbkdf2Iterations = 100000
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeySize, sha256.New)
}

// encryptEntry seals deflated (plainCRC, deflated) into salt||nonce||
// ciphertext, where the sealed plaintext is plainCRC (4 bytes, big
// endian) followed by deflated so the extractor can verify the original
// file's CRC after decrypting without re-walking the zip central
// directory.
func encryptEntry(password string, plainCRC uint32, deflated []byte) ([]byte, liberr.Error) {
	salt := make([]byte, aesSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, ErrorCodec.ErrorParent(err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesNonceSize)
	if _, rerr := rand.Read(nonce); rerr != nil {
		return nil, ErrorCodec.ErrorParent(rerr)
	}

	plain := make([]byte, 4+len(deflated))
	binary.BigEndian.PutUint32(plain[:4], plainCRC)
	copy(plain[4:], deflated)

	sealed := gcm.Seal(nil, nonce, plain, nil)

	out := make([]byte, 0, aesSaltSize+aesNonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// decryptEntry reverses encryptEntry, returning the original file's CRC
// and its deflated byte stream.
func decryptEntry(password string, payload []byte) (uint32, []byte, liberr.Error) {
	if len(payload) < aesSaltSize+aesNonceSize {
		return 0, nil, ErrorCodec.Error(nil)
	}
	salt := payload[:aesSaltSize]
	nonce := payload[aesSaltSize : aesSaltSize+aesNonceSize]
	ciphertext := payload[aesSaltSize+aesNonceSize:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return 0, nil, err
	}

	plain, oerr := gcm.Open(nil, nonce, ciphertext, nil)
	if oerr != nil {
		return 0, nil, ErrorCodec.ErrorParent(oerr)
	}
	if len(plain) < 4 {
		return 0, nil, ErrorCodec.Error(nil)
	}
	return binary.BigEndian.Uint32(plain[:4]), plain[4:], nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, liberr.Error) {
	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrorCodec.ErrorParent(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrorCodec.ErrorParent(err)
	}
	return gcm, nil
}

func crc32Of(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
