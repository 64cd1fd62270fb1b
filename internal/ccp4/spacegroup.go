// SPDX-License-Identifier: MIT

package ccp4

import (
	"fmt"
	"strconv"
	"strings"
)

// SpacegroupP1 is the IUCr number of spacegroup P 1.
const SpacegroupP1 int32 = 1

// spacegroupNumbers maps normalized Hermann-Mauguin symbols to IUCr
// numbers. The table covers the spacegroups that occur in protein
// crystallography, so the target spacegroup can be configured by
// symbol rather than bare number.
var spacegroupNumbers = map[string]int32{
	"P1":       1,
	"P2":       3,
	"P21":      4,
	"C2":       5,
	"P222":     16,
	"P2221":    17,
	"P21212":   18,
	"P212121":  19,
	"C2221":    20,
	"C222":     21,
	"F222":     22,
	"I222":     23,
	"I212121":  24,
	"P4":       75,
	"P41":      76,
	"P42":      77,
	"P43":      78,
	"I4":       79,
	"I41":      80,
	"P422":     89,
	"P4212":    90,
	"P4122":    91,
	"P41212":   92,
	"P4222":    93,
	"P42212":   94,
	"P4322":    95,
	"P43212":   96,
	"I422":     97,
	"I4122":    98,
	"P3":       143,
	"P31":      144,
	"P32":      145,
	"R3":       146,
	"P312":     149,
	"P321":     150,
	"P3112":    151,
	"P3121":    152,
	"P3212":    153,
	"P3221":    154,
	"R32":      155,
	"P6":       168,
	"P61":      169,
	"P65":      170,
	"P62":      171,
	"P64":      172,
	"P63":      173,
	"P622":     177,
	"P6122":    178,
	"P6522":    179,
	"P6222":    180,
	"P6422":    181,
	"P6322":    182,
	"P23":      195,
	"F23":      196,
	"I23":      197,
	"P213":     198,
	"I213":     199,
	"P432":     207,
	"P4232":    208,
	"F432":     209,
	"F4132":    210,
	"I432":     211,
	"P4332":    212,
	"P4132":    213,
	"I4132":    214,
}

// FindSpacegroupByName resolves a Hermann-Mauguin symbol (e.g. "P 1",
// "P 21 21 21") or a bare IUCr number to a spacegroup number.
func FindSpacegroupByName(name string) (int32, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("ccp4: empty spacegroup name")
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		if n < 1 || n > 230 {
			return 0, fmt.Errorf("ccp4: spacegroup number %d out of range", n)
		}
		return int32(n), nil
	}
	key := strings.ToUpper(strings.ReplaceAll(trimmed, " ", ""))
	if num, ok := spacegroupNumbers[key]; ok {
		return num, nil
	}
	return 0, fmt.Errorf("ccp4: unknown spacegroup %q", name)
}
