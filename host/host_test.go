// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"context"
	"testing"

	"code.hybscloud.com/rpdo/comm"
	rpdocontext "code.hybscloud.com/rpdo/context"
	"code.hybscloud.com/rpdo/rpdoerr"
)

func TestPingRepliesEmpty(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	req := comm.Frame{Source: 9, Target: 1, ID: 5, Command: comm.Ping}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, nil)
	if !ok {
		t.Fatal("expected a reply")
	}
	if reply.Command != comm.Reply || reply.Source != 1 || reply.Target != 9 || reply.InReplyTo != 5 {
		t.Fatalf("unexpected reply frame: %+v", reply)
	}
	if len(payload) != 0 {
		t.Fatalf("expected empty payload, got %v", payload)
	}
}

func TestWrongTargetYieldsUnknownHost(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	req := comm.Frame{Source: 0, Target: 2, ID: 0, Command: comm.Ping}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, nil)
	if !ok {
		t.Fatal("expected an error reply")
	}
	if reply.Command != comm.Error {
		t.Fatalf("expected Error command, got %v", reply.Command)
	}
	if len(payload) < 2 || payload[0] != 0x01 || payload[1] != 0x00 {
		t.Fatalf("expected UnknownHost code 0x0001, got % x", payload)
	}
}

func TestTargetZeroIsBroadcastAddressed(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	req := comm.Frame{Source: 9, Target: 0, ID: 1, Command: comm.Ping}
	reply, _, ok := h.ProcessFrame(context.Background(), req, nil)
	if !ok || reply.Command != comm.Reply {
		t.Fatalf("broadcast-addressed ping should be served, got %+v ok=%v", reply, ok)
	}
}

func TestReplyAndErrorFramesAreSwallowed(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	if _, _, ok := h.ProcessFrame(context.Background(), comm.Frame{Command: comm.Reply}, nil); ok {
		t.Fatal("stray Reply frame should not produce a reply")
	}
	if _, _, ok := h.ProcessFrame(context.Background(), comm.Frame{Command: comm.Error}, []byte{0x00, 0x00}); ok {
		t.Fatal("stray Error frame should not produce a reply")
	}
}

func TestWriteThenReadSharedContext(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(2, 16, true))
	writeHdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 0, Size: 4})
	writeReq := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.WriteSharedContext}
	reply, payload, ok := h.ProcessFrame(context.Background(), writeReq, append(writeHdr, []byte{1, 2, 3, 4}...))
	if !ok || reply.Command != comm.Reply || len(payload) != 0 {
		t.Fatalf("unexpected write reply: %+v payload=%v ok=%v", reply, payload, ok)
	}

	readHdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 0, Size: 4})
	readReq := comm.Frame{Source: 9, Target: 1, ID: 2, Command: comm.ReadSharedContext}
	reply, payload, ok = h.ProcessFrame(context.Background(), readReq, readHdr)
	if !ok || reply.Command != comm.Reply {
		t.Fatalf("unexpected read reply: %+v ok=%v", reply, ok)
	}
	if !bytes.Equal(payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("read payload mismatch: got %v", payload)
	}
}

func TestWriteSharedContextUnconfirmedSuppressesSuccessReply(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 16, true))
	hdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 0, Size: 4})
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.WriteSharedContextUnconfirmed}
	_, _, ok := h.ProcessFrame(context.Background(), req, append(hdr, []byte{1, 2, 3, 4}...))
	if ok {
		t.Fatal("unconfirmed write success should not reply")
	}

	readHdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 0, Size: 4})
	readReq := comm.Frame{Source: 9, Target: 1, ID: 2, Command: comm.ReadSharedContext}
	reply, payload, ok := h.ProcessFrame(context.Background(), readReq, readHdr)
	if !ok || reply.Command != comm.Reply || !bytes.Equal(payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("write was not applied: %+v %v ok=%v", reply, payload, ok)
	}
}

func TestWriteSharedContextUnconfirmedStillRepliesOnFailure(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	hdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 100, Size: 4})
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.WriteSharedContextUnconfirmed}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, append(hdr, []byte{1, 2, 3, 4}...))
	if !ok || reply.Command != comm.Error {
		t.Fatalf("expected error reply on failure, got %+v ok=%v", reply, ok)
	}
	if len(payload) < 2 {
		t.Fatalf("expected encoded error payload, got %v", payload)
	}
}

func TestReadSharedContextWithOverflowingHeaderIsPackerError(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 16, true))
	hdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: 0, Offset: 0xFFFFFFFF, Size: 1})
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.ReadSharedContext}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, hdr)
	if !ok || reply.Command != comm.Error {
		t.Fatalf("expected error reply, got %+v ok=%v", reply, ok)
	}
	if len(payload) < 2 || payload[0] != 0x10 || payload[1] != 0x00 {
		t.Fatalf("expected Packer code 0x0010, got % x", payload)
	}
}

func TestUnknownCommandWithoutHandlerIsInvalidCommand(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.Command(0x8001)}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, []byte("dlrow"))
	if !ok || reply.Command != comm.Error {
		t.Fatalf("expected InvalidCommand error, got %+v ok=%v", reply, ok)
	}
	if len(payload) < 2 || payload[0] != 0x02 || payload[1] != 0x00 {
		t.Fatalf("expected InvalidCommand code 0x0002, got % x", payload)
	}
}

func TestCustomCommandRoundTrip(t *testing.T) {
	reverse := CustomCommandHandlerFunc(func(_ context.Context, _ comm.Frame, data []byte) ([]byte, error) {
		out := make([]byte, len(data))
		for i, b := range data {
			out[len(data)-1-i] = b
		}
		return out, nil
	})
	h := New(1, rpdocontext.NewBasic(1, 4, false), WithCustomCommandHandler(reverse))
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.Command(0x8001)}
	reply, payload, ok := h.ProcessFrame(context.Background(), req, []byte("dlrow"))
	if !ok || reply.Command != comm.Reply {
		t.Fatalf("unexpected custom command reply: %+v ok=%v", reply, ok)
	}
	if string(payload) != "world" {
		t.Fatalf("payload = %q, want %q", payload, "world")
	}
}

func TestCustomCommandHandlerErrorProducesErrorReply(t *testing.T) {
	failing := CustomCommandHandlerFunc(func(_ context.Context, _ comm.Frame, _ []byte) ([]byte, error) {
		return nil, rpdoerr.Failedf("boom")
	})
	h := New(1, rpdocontext.NewBasic(1, 4, false), WithCustomCommandHandler(failing))
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.Command(0x8001)}
	reply, _, ok := h.ProcessFrame(context.Background(), req, nil)
	if !ok || reply.Command != comm.Error {
		t.Fatalf("expected error reply, got %+v ok=%v", reply, ok)
	}
}

func TestFrameIDsAreMonotonicallyAllocated(t *testing.T) {
	h := New(1, rpdocontext.NewBasic(1, 4, false))
	req := comm.Frame{Source: 9, Target: 1, ID: 1, Command: comm.Ping}
	first, _, _ := h.ProcessFrame(context.Background(), req, nil)
	second, _, _ := h.ProcessFrame(context.Background(), req, nil)
	if second.ID <= first.ID {
		t.Fatalf("frame ids not increasing: %d then %d", first.ID, second.ID)
	}
}
