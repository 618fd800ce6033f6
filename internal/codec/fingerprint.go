// Copyright 2026 The MottoMesh Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// fingerprintKey is a fixed 32-byte key: the fingerprint only needs to be
// stable across builds of this codec, not secret.
var fingerprintKey = []byte{
	'm', 'o', 't', 't', 'o', 'm', 'e', 's', 'h', '-', 'c', 'o', 'd', 'e', 'c', '-',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', '-', 'v', '0', '0', '1',
}

// Fingerprint identifies the codec/schema version this build speaks, as
// 16 hex characters. It is derived from ProtocolVersion alone, so two
// builds with the same version byte have the same fingerprint. No wire
// message carries it.
func Fingerprint() string {
	h, err := highwayhash.New(fingerprintKey)
	if err != nil {
		// fingerprintKey is a fixed, known-valid 32-byte key.
		panic(err)
	}
	h.Write([]byte{ProtocolVersion})
	return hex.EncodeToString(h.Sum(nil)[:8])
}
