package probe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)
	if err, ok := f.errs[line]; ok {
		return nil, err
	}
	out, ok := f.outputs[line]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}

	return []byte(out), nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "probe")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestSingleWrapsErrors(t *testing.T) {
	p := Single(channel.Hostname, func(context.Context) (string, error) {
		return "", io.EOF
	})

	assert.Equal(t, channel.Hostname, p.Name())

	_, err := p.Sample(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestTemperatureFromThermalZone(t *testing.T) {
	cmd := &fakeCommander{}
	p := Temperature(writeFile(t, "48312\n"), cmd)

	readings, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.Temperature, Value: "48.3"}}, readings)
	assert.Empty(t, cmd.calls)
}

func TestTemperatureFallsBackToVcgencmd(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{"vcgencmd measure_temp": "temp=51.0'C\n"}}
	p := Temperature(filepath.Join(t.TempDir(), "missing"), cmd)

	readings, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.Temperature, Value: "51.0"}}, readings)
}

func TestTemperatureFailure(t *testing.T) {
	p := Temperature(filepath.Join(t.TempDir(), "missing"), &fakeCommander{})

	_, err := p.Sample(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
}

func TestParseMeasureTemp(t *testing.T) {
	for _, tt := range []struct {
		out     string
		want    float64
		wantErr bool
	}{
		{out: "temp=48.3'C", want: 48.3},
		{out: "temp=60.0'C\n", want: 60},
		{out: "garbage", wantErr: true},
		{out: "temp=hot'C", wantErr: true},
	} {
		t.Run(tt.out, func(t *testing.T) {
			got, err := parseMeasureTemp(tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

const amixerOutput = `Simple mixer control 'Master',0
  Capabilities: pvolume pswitch pswitch-joined
  Playback channels: Front Left - Front Right
  Limits: Playback 0 - 65536
  Mono:
  Front Left: Playback 37355 [57%] [on]
  Front Right: Playback 37355 [57%] [on]
`

func TestAmixer(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"amixer get Master":         amixerOutput,
		"amixer -q sset Master 80%": "",
	}}
	mixer := NewAmixer(cmd, "Master")

	v, err := mixer.Volume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 57, v)

	require.NoError(t, mixer.SetVolume(context.Background(), 80))
	assert.Equal(t, []string{"amixer get Master", "amixer -q sset Master 80%"}, cmd.calls)

	err = mixer.SetVolume(context.Background(), 101)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestVolumeProbe(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{"amixer get PCM": amixerOutput}}

	readings, err := Volume(NewAmixer(cmd, "PCM")).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.Volume, Value: "57"}}, readings)

	_, err = parseAmixer("Simple mixer control 'PCM',0")
	assert.Error(t, err)
}

const iwconfigOutput = `wlan0     IEEE 802.11  ESSID:"Home Net"
          Mode:Managed  Frequency:2.437 GHz  Access Point: 11:22:33:44:55:66
          Bit Rate=72.2 Mb/s   Tx-Power=31 dBm
          Retry short limit:7   RTS thr:off   Fragment thr:off
          Power Management:on
          Link Quality=58/70  Signal level=-52 dBm
          Rx invalid nwid:0  Rx invalid crypt:0  Rx invalid frag:0
`

func TestWireless(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{"iwconfig wlan0": iwconfigOutput}}

	readings, err := Wireless(cmd, "wlan0").Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{
		{Channel: channel.SSID, Value: "Home Net"},
		{Channel: channel.SignalStrength, Value: "-52"},
		{Channel: channel.SignalQuality, Value: "82"},
	}, readings)
}

func TestWirelessNotAssociated(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"iwconfig wlan0": "wlan0     IEEE 802.11  ESSID:off/any\n          Mode:Managed  Access Point: Not-Associated\n",
	}}

	_, err := Wireless(cmd, "wlan0").Sample(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
}

func TestWirelessCommandFailure(t *testing.T) {
	cmd := &fakeCommander{}

	_, err := Wireless(cmd, "wlan1").Sample(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
}

func TestParseOSRelease(t *testing.T) {
	name, err := parseOSRelease([]byte(`NAME="Debian GNU/Linux"
PRETTY_NAME="Raspbian GNU/Linux 11 (bullseye)"
VERSION_ID="11"
`))
	require.NoError(t, err)
	assert.Equal(t, "Raspbian GNU/Linux 11 (bullseye)", name)

	_, err = parseOSRelease([]byte("NAME=Arch\n"))
	assert.Error(t, err)
}

func TestOSReleaseAndModel(t *testing.T) {
	readings, err := OSRelease(writeFile(t, "PRETTY_NAME=\"Debian 12\"\n")).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.OS, Value: "Debian 12"}}, readings)

	readings, err = Model(writeFile(t, "Raspberry Pi Zero 2 W Rev 1.0\x00")).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.Raspi, Value: "Raspberry Pi Zero 2 W Rev 1.0"}}, readings)
}

func TestHostAndArchitecture(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)

	readings, err := Hostname().Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Channel: channel.Hostname, Value: hostname}}, readings)

	readings, err = Architecture().Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.NotEmpty(t, readings[0].Value)
}

func TestNetworkUnknownInterface(t *testing.T) {
	_, err := IP("does-not-exist0").Sample(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrProbe))

	_, err = MAC("does-not-exist0").Sample(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
}

func TestPlayerState(t *testing.T) {
	for _, tt := range []struct {
		content string
		want    bool
	}{
		{content: "play\nsome track\n", want: true},
		{content: "pause\n", want: false},
		{content: "", want: false},
	} {
		t.Run(tt.content, func(t *testing.T) {
			active, err := NewPlayerState(writeFile(t, tt.content)).Active(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, active)
		})
	}

	_, err := NewPlayerState(filepath.Join(t.TempDir(), "missing")).Active(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrProbe))
}
