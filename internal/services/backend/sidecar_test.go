package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_MODE_SIDECAR") == "1" {
		fmt.Fprint(os.Stderr, os.Getenv("MOCK_STDERR"))
		if os.Getenv("MOCK_HANG") == "1" {
			time.Sleep(30 * time.Second)
		}
		code, _ := strconv.Atoi(os.Getenv("MOCK_EXIT"))
		os.Exit(code)
	}

	os.Exit(m.Run())
}

func mockExecCommand(t *testing.T, stderr string, exitCode int, hang bool) *[]string {
	var got []string
	originalExecCommand := execCommand
	t.Cleanup(func() {
		execCommand = originalExecCommand
	})

	execCommand = func(command string, args ...string) *exec.Cmd {
		got = append([]string{command}, args...)
		cmd := exec.Command(os.Args[0], "-test.run=TestMain")
		cmd.Env = []string{
			"GO_TEST_MODE_SIDECAR=1",
			"MOCK_STDERR=" + stderr,
			"MOCK_EXIT=" + strconv.Itoa(exitCode),
		}
		if hang {
			cmd.Env = append(cmd.Env, "MOCK_HANG=1")
		}
		return cmd
	}
	return &got
}

func collect(t *testing.T, events <-chan ports.Event, until func(ports.Event) bool) []ports.Event {
	t.Helper()
	var got []ports.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if until(ev) {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", got)
			return nil
		}
	}
}

var (
	hdTarget = domain.StationTarget{Kind: domain.KindHDRadio, Frequency: 101.5, Subchannel: 2}
	hdParams = domain.DefaultTuning(domain.KindHDRadio)
)

func TestSidecar_RunsAndFinishes(t *testing.T) {
	argv := mockExecCommand(t, "Found Realtek, RTL2838UHIDIR, SN: 00000001\n12:00:00 Title: Song\n", 0, false)
	s := NewSidecar(domain.BackendConfig{})
	defer s.Close()

	require.NoError(t, s.Start(context.Background(), domain.KindHDRadio, hdTarget, hdParams, "00000001"))
	require.Equal(t, []string{"nrsc5", "-g", "12", "101.5", "1"}, *argv)

	events := collect(t, s.Events(), func(ev ports.Event) bool { return ev.Status == ports.StatusStopped })
	require.Equal(t, ports.StatusStarting, events[0].Status)
	require.Equal(t, ports.StatusRunning, events[1].Status)
	require.Equal(t, "Song", events[2].Metadata["title"])
	require.Equal(t, ports.StatusEvent(domain.KindHDRadio, ports.StatusStopped), events[len(events)-1])
}

func TestSidecar_CrashIsFatal(t *testing.T) {
	mockExecCommand(t, "Failed to open rtlsdr device #0.\n", 1, false)
	s := NewSidecar(domain.BackendConfig{})
	defer s.Close()

	fm := domain.StationTarget{Kind: domain.KindFM, Frequency: 98.7}
	require.NoError(t, s.Start(context.Background(), domain.KindFM, fm, domain.DefaultTuning(domain.KindFM), "00000001"))

	events := collect(t, s.Events(), func(ev ports.Event) bool {
		return ev.Fatal && ev.Err != "Failed to open rtlsdr device #0."
	})
	require.True(t, events[0].Fatal)
	require.Equal(t, "Failed to open rtlsdr device #0.", events[0].Err)
	last := events[len(events)-1]
	require.Equal(t, domain.KindFM, last.Kind)
	require.Contains(t, last.Err, "exited")
}

func TestSidecar_StopTerminates(t *testing.T) {
	mockExecCommand(t, "Found Realtek\n", 0, true)
	s := NewSidecar(domain.BackendConfig{StopTimeout: 2 * time.Second})
	defer s.Close()

	require.NoError(t, s.Start(context.Background(), domain.KindHDRadio, hdTarget, hdParams, "00000001"))
	collect(t, s.Events(), func(ev ports.Event) bool { return ev.Status == ports.StatusStarting })

	err := s.Start(context.Background(), domain.KindHDRadio, hdTarget, hdParams, "00000001")
	require.ErrorIs(t, err, domain.ErrBackendStart)

	require.NoError(t, s.Stop(context.Background(), domain.KindHDRadio))
	require.NoError(t, s.Stop(context.Background(), domain.KindHDRadio), "Stopping twice is a no-op")

	select {
	case ev := <-s.Events():
		t.Fatalf("a requested stop must not produce events, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, s.Start(context.Background(), domain.KindHDRadio, hdTarget, hdParams, "00000001"))
}

func TestSidecar_MissingExecutableIsFatal(t *testing.T) {
	s := NewSidecar(domain.BackendConfig{Commands: map[string][]string{
		"AM": {"/nonexistent/sdrtune-test-binary", "{freq_hz}"},
	}})
	defer s.Close()

	am := domain.StationTarget{Kind: domain.KindAM, Frequency: 810}
	err := s.Start(context.Background(), domain.KindAM, am, domain.DefaultTuning(domain.KindAM), "")
	require.ErrorIs(t, err, domain.ErrBackendFatal)
}
