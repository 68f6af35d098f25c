package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/refs"
	"github.com/statewalker/vcs-sub012/wire/pktline"
)

func TestParseServiceRequest(t *testing.T) {
	req, err := ParseServiceRequest([]byte("git-upload-pack /my/repo.git\x00host=example.com\x00"))
	require.NoError(t, err)
	require.Equal(t, "git-upload-pack", req.Service)
	require.Equal(t, "/my/repo.git", req.Path)
	require.Equal(t, "example.com", req.Host)
}

func TestParseServiceRequestMalformed(t *testing.T) {
	_, err := ParseServiceRequest([]byte("not-a-valid-line"))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestCapabilitiesRoundTrip(t *testing.T) {
	c := ParseCapabilities("multi_ack side-band-64k agent=git/2.0")
	require.True(t, c.Supports("multi_ack"))
	require.True(t, c.Supports("side-band-64k"))
	v, ok := c.Get("agent")
	require.True(t, ok)
	require.Equal(t, "git/2.0", v)
	require.Equal(t, "multi_ack side-band-64k agent=git/2.0", c.String())
}

func TestAdvertiseRefsWritesHeadCapsAndFlush(t *testing.T) {
	commitID := codec.Sum([]byte("commit"))
	otherID := codec.Sum([]byte("other"))

	caps := NewCapabilities()
	caps.Add("side-band-64k")
	caps.Add("agent", "example/1.0")

	var buf bytes.Buffer
	err := AdvertiseRefs(&buf,
		&AdvertisedRef{Name: refs.HEAD, ID: commitID},
		[]AdvertisedRef{{Name: "refs/heads/main", ID: otherID}},
		caps,
	)
	require.NoError(t, err)

	s := pktline.NewScanner(&buf)
	require.True(t, s.Scan())
	first := string(s.Bytes())
	require.Contains(t, first, commitID.String()+" HEAD\x00side-band-64k agent=example/1.0")

	require.True(t, s.Scan())
	require.Contains(t, string(s.Bytes()), otherID.String()+" refs/heads/main")

	require.True(t, s.Scan())
	require.Empty(t, s.Bytes())
	require.False(t, s.Scan())
}

func TestDispatchUploadPackParsesWantsAndHaves(t *testing.T) {
	wantID := codec.Sum([]byte("want"))
	haveID := codec.Sum([]byte("have"))

	var req bytes.Buffer
	_, _ = pktline.WritePacketString(&req, "want "+wantID.String()+" side-band-64k\n")
	_ = pktline.WriteFlush(&req)
	_, _ = pktline.WritePacketString(&req, "have "+haveID.String()+"\n")
	_, _ = pktline.WritePacketString(&req, "done\n")

	var gotWants, gotHaves []codec.ID
	var out bytes.Buffer
	handler := func(w interface{ Write([]byte) (int, error) }, r interface {
		Read([]byte) (int, error)
	}, wants, haves []codec.ID) error {
		gotWants = wants
		gotHaves = haves
		return nil
	}

	err := Dispatch(&ServiceRequest{Service: "git-upload-pack"}, &req, &out, Handlers{
		UploadPack: func(w interface{ Write([]byte) (int, error) }, r interface {
			Read([]byte) (int, error)
		}, wants, haves []codec.ID) error {
			return handler(w, r, wants, haves)
		},
	})
	require.NoError(t, err)
	require.Equal(t, []codec.ID{wantID}, gotWants)
	require.Equal(t, []codec.ID{haveID}, gotHaves)
}

func TestDispatchReceivePackParsesCommands(t *testing.T) {
	oldID := codec.Sum([]byte("old"))
	newID := codec.Sum([]byte("new"))

	var req bytes.Buffer
	_, _ = pktline.WritePacketString(&req, oldID.String()+" "+newID.String()+" refs/heads/main\x00report-status\n")
	_ = pktline.WriteFlush(&req)

	var got []RefCommand
	err := Dispatch(&ServiceRequest{Service: "git-receive-pack"}, &req, nil, Handlers{
		ReceivePack: func(r interface {
			Read([]byte) (int, error)
		}, commands []RefCommand) error {
			got = commands
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []RefCommand{{Name: "refs/heads/main", Old: oldID, New: newID}}, got)
}
