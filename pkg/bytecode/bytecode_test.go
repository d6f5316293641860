package bytecode

import "testing"

func TestDecodeWidthAgreesWithNextOffset(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"nop", []byte{byte(OpNop)}},
		{"cancel", []byte{byte(OpCancel)}},
		{"load_true", []byte{byte(OpLoadTrue), 0}},
		{"load_int8", []byte{byte(OpLoadInt8), 0, 0xFF}},
		{"load_int32", []byte{byte(OpLoadInt32), 0, 1, 0, 0, 0}},
		{"load_int64", []byte{byte(OpLoadInt64), 0, 1, 0, 0, 0, 0, 0, 0, 0}},
		{"load_const", []byte{byte(OpLoadConst), 0, 1, 0, 0, 0}},
		{"load_const8", []byte{byte(OpLoadConst8), 0, 1}},
		{"jump", []byte{byte(OpJump), 0, 0, 0, 0}},
		{"jump_cond", []byte{byte(OpJumpCond), 0, 0, 0, 0, 0}},
		{"catch", []byte{byte(OpCatch), 0, 0, 0, 0, 0}},
		{"get_prop8", []byte{byte(OpGetProp8), 0, 1, 2}},
		{"get_elem", []byte{byte(OpGetElem), 0, 1, 0, 0, 0, 0, 0, 0, 0}},
		{"get_range", []byte{byte(OpGetRange), 0, 1, 2}},
		{"call", []byte{byte(OpCall), 0, 1, 2, 3}},
		{"bind", []byte{byte(OpBind), 0, 1, 2}},
		{"bind_self", []byte{byte(OpBindSelf), 0, 1}},
		{"return", []byte{byte(OpReturn), 0, 1}},
		{"move", []byte{byte(OpMove), 0, 1}},
		{"get_mod", []byte{byte(OpGetMod), 0, 1, 0, 0, 0}},
		{"add", []byte{byte(OpAdd), 0, 1, 2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ins, next, ok := Decode(tc.code, 0)
			if !ok {
				t.Fatalf("Decode failed on well-formed %s bytes", tc.name)
			}
			if int(next) != len(tc.code) {
				t.Fatalf("Decode consumed %d bytes, want %d (full buffer)", next, len(tc.code))
			}
			if ins.Width() != len(tc.code) {
				t.Fatalf("Width() = %d, want %d to match Decode's own advance", ins.Width(), len(tc.code))
			}
		})
	}
}

func TestDecodeRejectsTruncatedOperands(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"load_int32 missing bytes", []byte{byte(OpLoadInt32), 0, 1, 0}},
		{"call missing operand", []byte{byte(OpCall), 0, 1, 2}},
		{"get_elem missing padding", []byte{byte(OpGetElem), 0, 1, 0, 0, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, ok := Decode(tc.code, 0); ok {
				t.Fatalf("expected Decode to reject a truncated %s instruction", tc.name)
			}
		})
	}
}

func TestDecodeUnknownOpcodeFails(t *testing.T) {
	if _, _, ok := Decode([]byte{0xFE}, 0); ok {
		t.Fatalf("expected an unrecognized opcode byte to fail decoding")
	}
}

func TestDecodePastEndOfBuffer(t *testing.T) {
	code := []byte{byte(OpNop)}
	if _, _, ok := Decode(code, 1); ok {
		t.Fatalf("expected Decode to fail when ip is at the end of the buffer")
	}
}

func TestOpStringIsStableForEveryNamedOpcode(t *testing.T) {
	ops := []Op{
		OpNop, OpLoadInt8, OpLoadConst, OpJump, OpCall, OpReturn, OpThrow,
		OpCatch, OpYield, OpCallGen, OpBind, OpBindSelf, OpBindDefaults,
	}
	for _, op := range ops {
		if s := op.String(); s == "" || s == "UNKNOWN" {
			t.Fatalf("Op(%d).String() = %q, want a real mnemonic", op, s)
		}
	}
}
