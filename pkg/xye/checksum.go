// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

// Checksum computes the XYE checksum of a complete frame: 0xFF minus the
// byte sum of everything before the checksum slot (all but the last two
// bytes), truncated to one byte.
func Checksum(frame []byte) byte {
	if len(frame) < 2 {
		return 0xFF
	}
	return checksumOf(frame[:len(frame)-2])
}

// checksumOf returns 0xFF - (sum(data) mod 256).
func checksumOf(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}
