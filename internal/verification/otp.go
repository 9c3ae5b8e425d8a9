package verification

import "strings"

// OTPLength is the number of single-digit slots in the code entry.
const OTPLength = 6

// NoFocus marks that no OTP slot is focused.
const NoFocus = -1

// otpEntry holds the six slots and the focused index.
type otpEntry struct {
	slots [OTPLength]string
	focus int
}

func newOTPEntry() otpEntry {
	return otpEntry{focus: NoFocus}
}

// set stores value (empty or one digit) at index. A non-empty value moves
// focus to the next slot, or clears it after the last one.
func (o *otpEntry) set(index int, value string) {
	o.slots[index] = value
	switch {
	case value == "":
		o.focus = index
	case index < OTPLength-1:
		o.focus = index + 1
	default:
		o.focus = NoFocus
	}
}

// backspace on an empty slot clears the previous one and focuses it.
func (o *otpEntry) backspace(index int) bool {
	if o.slots[index] != "" || index == 0 {
		return false
	}
	o.slots[index-1] = ""
	o.focus = index - 1
	return true
}

// reset clears every slot and focuses the first.
func (o *otpEntry) reset() {
	o.slots = [OTPLength]string{}
	o.focus = 0
}

// clear empties every slot and drops focus.
func (o *otpEntry) clear() {
	o.slots = [OTPLength]string{}
	o.focus = NoFocus
}

func (o *otpEntry) complete() bool {
	for _, s := range o.slots {
		if s == "" {
			return false
		}
	}
	return true
}

func (o *otpEntry) code() string {
	return strings.Join(o.slots[:], "")
}
