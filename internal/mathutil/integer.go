// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package mathutil holds small integer helpers shared by the consensus and
// snapshot packages. Trimmed from erigon-lib's common/math package down to
// what this coordination layer actually uses.
package mathutil

// AbsoluteDifference returns the absolute value of x-y, used to report the
// height gap between own and majority snapshots in redownload log lines.
func AbsoluteDifference(x, y int64) int64 {
	if x > y {
		return x - y
	}
	return y - x
}
