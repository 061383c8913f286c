// Copyright 2026 TreasuryKit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package subaccount derives the deterministic sub-addresses used to fund
// and later identify stake positions. An address is a pure function of the
// owner identity and a monotonically increasing sequence number, so a
// position funded at a derived address can always be re-identified even if
// the local reference row was lost.
package subaccount

import (
	"crypto/sha256"
	"encoding/binary"
)

// AddressSize is the length in bytes of a derived sub-address.
const AddressSize = 32

// domainSeparator prefixes every derivation. The leading byte is the
// separator length.
var domainSeparator = []byte("\x0cstake-position")

// Derive returns the sub-address for the given owner identity and sequence
// number. For a fixed owner the mapping is injective over the sequence
// number.
func Derive(owner []byte, seq uint64) [AddressSize]byte {
	h := sha256.New()
	h.Write(domainSeparator)
	h.Write(owner)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	h.Write(seqBytes[:])
	var addr [AddressSize]byte
	copy(addr[:], h.Sum(nil))
	return addr
}

// Memo returns the funding memo that accompanies the initial transfer for
// a sequence number. The external service matches this memo during
// claim/refresh to bind the funded address to an identifier.
func Memo(seq uint64) []byte {
	var memo [8]byte
	binary.BigEndian.PutUint64(memo[:], seq)
	return memo[:]
}
