// Package bitmask converts between raw 32-bit masks and sets
// of named flags.
//
// Every domain (file attributes, mount options, access rights
// and so on) declares its flags as a named ~uint32 type and an
// ordered Universe of them. Decoding walks the universe in its
// declared order and consumes the bits of every flag that is
// fully contained in the remaining mask, so composite flags
// must be listed before the flags they are made of.
package bitmask

import (
	"sort"
)

// Flag is the constraint of a named mask type.
type Flag interface {
	~uint32
}

// Universe is the ordered list of flag definitions of a
// domain. The order is part of the decoding contract.
type Universe[F Flag] []F

// Set is an immutable set of flags.
//
// Members are kept sorted by value and deduplicated, so two
// sets holding the same flags are always deeply equal.
type Set[F Flag] struct {
	members []F
}

func normalize[F Flag](flags []F) []F {
	if len(flags) == 0 {
		return nil
	}
	result := make([]F, len(flags))
	copy(result, flags)
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	n := 1
	for i := 1; i < len(result); i++ {
		if result[i] != result[n-1] {
			result[n] = result[i]
			n++
		}
	}
	return result[:n]
}

// Of creates a set holding the specified flags.
func Of[F Flag](flags ...F) Set[F] {
	return Set[F]{members: normalize(flags)}
}

// DecodeResidual decodes the mask against the universe and
// returns the bits that no flag has consumed.
func DecodeResidual[F Flag](
	mask uint32, universe Universe[F],
) (Set[F], uint32) {
	var members []F
	remaining := mask
	for _, flag := range universe {
		value := uint32(flag)
		if value == 0 {
			// A zero flag is contained in every mask, and
			// would show up in every decoded set.
			continue
		}
		if remaining&value == value {
			members = append(members, flag)
			remaining &^= value
		}
	}
	return Set[F]{members: normalize(members)}, remaining
}

// Decode decodes the mask against the universe, dropping
// the bits that are not recognized.
func Decode[F Flag](mask uint32, universe Universe[F]) Set[F] {
	result, _ := DecodeResidual(mask, universe)
	return result
}

// Lookup finds the universe member whose value is exactly
// the specified one. It is used for ordinal enumerations,
// which must not be decoded bit by bit.
func Lookup[F Flag](value uint32, universe Universe[F]) (F, bool) {
	for _, flag := range universe {
		if uint32(flag) == value {
			return flag, true
		}
	}
	var zero F
	return zero, false
}

// Encode reduces the set into its mask by or-ing members.
func (s Set[F]) Encode() uint32 {
	var result uint32
	for _, flag := range s.members {
		result |= uint32(flag)
	}
	return result
}

// Has tells whether the flag is a member of the set.
func (s Set[F]) Has(flag F) bool {
	for _, member := range s.members {
		if member == flag {
			return true
		}
	}
	return false
}

// Contains tells whether all bits of the flag are covered by
// the set, regardless of how the set was decoded.
func (s Set[F]) Contains(flag F) bool {
	return s.Encode()&uint32(flag) == uint32(flag)
}

// Len returns the number of members.
func (s Set[F]) Len() int {
	return len(s.members)
}

// IsEmpty tells whether the set has no member.
func (s Set[F]) IsEmpty() bool {
	return len(s.members) == 0
}

// Flags returns a copy of the members in ascending order.
func (s Set[F]) Flags() []F {
	if len(s.members) == 0 {
		return nil
	}
	result := make([]F, len(s.members))
	copy(result, s.members)
	return result
}

// With returns a new set with the flags added.
func (s Set[F]) With(flags ...F) Set[F] {
	all := make([]F, 0, len(s.members)+len(flags))
	all = append(all, s.members...)
	all = append(all, flags...)
	return Set[F]{members: normalize(all)}
}

// Without returns a new set with the flags removed.
func (s Set[F]) Without(flags ...F) Set[F] {
	var result []F
	for _, member := range s.members {
		removed := false
		for _, flag := range flags {
			if member == flag {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, member)
		}
	}
	return Set[F]{members: normalize(result)}
}
