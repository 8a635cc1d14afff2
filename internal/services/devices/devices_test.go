package devices

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"testing"

	"github.com/gabrielcapilla/sdrtune/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_MODE_PROBE") == "1" {
		fmt.Fprint(os.Stderr, os.Getenv("MOCK_STDERR"))
		code, _ := strconv.Atoi(os.Getenv("MOCK_EXIT"))
		os.Exit(code)
	}

	os.Exit(m.Run())
}

func mockExecCommand(t *testing.T, stderr string, exitCode int) {
	originalExecCommand := execCommand
	t.Cleanup(func() {
		execCommand = originalExecCommand
	})

	execCommand = func(ctx context.Context, command string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestMain")
		cmd.Env = []string{
			"GO_TEST_MODE_PROBE=1",
			"MOCK_STDERR=" + stderr,
			"MOCK_EXIT=" + strconv.Itoa(exitCode),
		}
		return cmd
	}
}

const rtlTestOutput = `Found 2 device(s):
  0:  Realtek, RTL2838UHIDIR, SN: 00000001
  1:  Nooelec, NESDR SMArt v5, SN: 12345678

Using device 0: Generic RTL2832U OEM
No E4000 tuner found, aborting.
`

func TestSource_Enumerate(t *testing.T) {
	testCases := []struct {
		name      string
		static    []domain.DeviceConfig
		stderr    string
		exitCode  int
		expectErr bool
		expected  []domain.DeviceHandle
	}{
		{
			name:     "Probe listing after a failed test run",
			stderr:   rtlTestOutput,
			exitCode: 1,
			expected: []domain.DeviceHandle{
				{Serial: "00000001", Label: "Realtek RTL2838UHIDIR"},
				{Serial: "12345678", Label: "Nooelec NESDR SMArt v5"},
			},
		},
		{
			name:   "Static devices come first and are not duplicated",
			static: []domain.DeviceConfig{{Serial: "12345678", Label: "Attic"}, {Serial: "99"}},
			stderr: rtlTestOutput,
			expected: []domain.DeviceHandle{
				{Serial: "12345678", Label: "Attic"},
				{Serial: "99", Label: "99"},
				{Serial: "00000001", Label: "Realtek RTL2838UHIDIR"},
			},
		},
		{
			name:     "No devices",
			stderr:   "No supported devices found.\n",
			exitCode: 1,
			expected: []domain.DeviceHandle{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockExecCommand(t, tc.stderr, tc.exitCode)
			src := NewSource(domain.DevicesConfig{Static: tc.static, ProbeCommand: []string{"rtl_test", "-t"}})

			handles, err := src.Enumerate(context.Background())
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, tc.expected, handles)
			for i, h := range handles {
				require.Equal(t, domain.Available, h.State, "handle %d", i)
			}
		})
	}
}

func TestSource_MissingProbe(t *testing.T) {
	src := NewSource(domain.DevicesConfig{ProbeCommand: []string{"/nonexistent/rtl_test"}})
	_, err := src.Enumerate(context.Background())
	require.Error(t, err)

	src = NewSource(domain.DevicesConfig{
		Static:       []domain.DeviceConfig{{Serial: "1", Label: "one"}},
		ProbeCommand: []string{"/nonexistent/rtl_test"},
	})
	handles, err := src.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 1)
}
