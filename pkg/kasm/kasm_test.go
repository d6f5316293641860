package kasm

import (
	"bytes"
	"testing"

	"github.com/koslang/kosvm/pkg/bytecode"
)

func TestAssembleByteLayouts(t *testing.T) {
	tests := []struct {
		name     string
		build    func(b *Builder)
		expected []byte
	}{
		{
			name:  "nop and cancel",
			build: func(b *Builder) { b.emit(bytecode.OpNop, 0, 0, 0, 0, 0); b.Cancel() },
			expected: []byte{
				byte(bytecode.OpNop),
				byte(bytecode.OpCancel),
			},
		},
		{
			name:  "load true/false/void and get_proto take a dest register",
			build: func(b *Builder) { b.LoadTrue(1); b.LoadFalse(2); b.LoadVoid(3); b.GetProto(4) },
			expected: []byte{
				byte(bytecode.OpLoadTrue), 1,
				byte(bytecode.OpLoadFalse), 2,
				byte(bytecode.OpLoadVoid), 3,
				byte(bytecode.OpGetProto), 4,
			},
		},
		{
			name:  "load_int8",
			build: func(b *Builder) { b.LoadInt8(0, -5) },
			expected: []byte{
				byte(bytecode.OpLoadInt8), 0, 0xFB,
			},
		},
		{
			name:  "load_int32",
			build: func(b *Builder) { b.LoadInt32(2, 1000) },
			expected: []byte{
				byte(bytecode.OpLoadInt32), 2, 0xE8, 0x03, 0x00, 0x00,
			},
		},
		{
			name:  "move and add are plain 3-register ops",
			build: func(b *Builder) { b.Move(1, 0); b.Add(2, 0, 1) },
			expected: []byte{
				byte(bytecode.OpMove), 1, 0,
				byte(bytecode.OpAdd), 2, 0, 1,
			},
		},
		{
			name:  "return is [op, a, b]",
			build: func(b *Builder) { b.Return(3) },
			expected: []byte{
				byte(bytecode.OpReturn), 3, 0,
			},
		},
		{
			name: "get_elem/set_elem carry a padded imm32",
			build: func(b *Builder) {
				b.GetElem(1, 0, -1)
				b.SetElem(0, 2, 1)
			},
			expected: []byte{
				byte(bytecode.OpGetElem), 1, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0,
				byte(bytecode.OpSetElem), 0, 1, 0x02, 0x00, 0x00, 0x00, 0, 0, 0,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			got, err := b.Assemble()
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if !bytes.Equal(got, tc.expected) {
				t.Fatalf("got % x, want % x", got, tc.expected)
			}
		})
	}
}

func TestAssembleResolvesForwardLabel(t *testing.T) {
	b := NewBuilder()
	b.LoadTrue(0)
	b.JumpCond(0, "end")
	b.LoadInt8(1, 9)
	b.Label("end")
	b.Return(1)

	code, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	ins, next, ok := bytecode.Decode(code, 2)
	if !ok {
		t.Fatalf("decode jump_cond failed")
	}
	if ins.Op != bytecode.OpJumpCond {
		t.Fatalf("expected JUMP_COND, got %s", ins.Op)
	}
	// JUMP_COND is at offset 2, 6 bytes wide (ends at 8); LOAD_INT8 (3
	// bytes) follows, so "end" sits at offset 11.
	target := uint32(int64(next) + int64(ins.Delta))
	if target != 11 {
		t.Fatalf("resolved jump target = %d, want 11", target)
	}
	retIns, _, ok := bytecode.Decode(code, target)
	if !ok || retIns.Op != bytecode.OpReturn {
		t.Fatalf("label did not resolve to the RETURN instruction")
	}
}

func TestAssembleResolvesBackwardLabel(t *testing.T) {
	b := NewBuilder()
	b.Label("loop")
	b.LoadInt8(0, 1)
	b.Jump("loop")

	code, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	ins, next, ok := bytecode.Decode(code, 3)
	if !ok || ins.Op != bytecode.OpJump {
		t.Fatalf("expected JUMP at offset 3")
	}
	target := uint32(int64(next) + int64(ins.Delta))
	if target != 0 {
		t.Fatalf("backward jump resolved to %d, want 0", target)
	}
}

func TestAssembleUndefinedLabelErrors(t *testing.T) {
	b := NewBuilder()
	b.Jump("nowhere")
	if _, err := b.Assemble(); err == nil {
		t.Fatalf("expected an error for an undefined label")
	}
}

func TestDuplicateLabelErrors(t *testing.T) {
	b := NewBuilder()
	b.Label("here")
	b.LoadVoid(0)
	b.Label("here")
	if _, err := b.Assemble(); err == nil {
		t.Fatalf("expected an error for a duplicate label")
	}
}

func TestDecodeRoundTripsEveryEmittedInstruction(t *testing.T) {
	b := NewBuilder()
	b.LoadInt8(0, 5)
	b.LoadInt8(1, 7)
	b.Add(2, 0, 1)
	b.Return(2)

	code, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	var offs uint32
	var ops []bytecode.Op
	for offs < uint32(len(code)) {
		ins, next, ok := bytecode.Decode(code, offs)
		if !ok {
			t.Fatalf("Decode failed at offset %d", offs)
		}
		ops = append(ops, ins.Op)
		offs = next
	}
	want := []bytecode.Op{bytecode.OpLoadInt8, bytecode.OpLoadInt8, bytecode.OpAdd, bytecode.OpReturn}
	if len(ops) != len(want) {
		t.Fatalf("decoded %d instructions, want %d", len(ops), len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("instruction %d: got %s, want %s", i, ops[i], want[i])
		}
	}
}
