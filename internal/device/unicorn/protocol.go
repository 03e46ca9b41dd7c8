package unicorn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Payload layout of one Bluetooth sample.
const (
	PayloadSize = 45

	headerOffset  = 0
	batteryOffset = 2
	eegOffset     = 3
	accelOffset   = 27
	gyroOffset    = 33
	counterOffset = 39
	footerOffset  = 43
)

// Acquired channel layout, matching the vendor SDK ordering.
const (
	EEGChannels   = 8
	AccelChannels = 3
	GyroChannels  = 3

	// EEG 1-8, accel xyz, gyro xyz, battery, counter, validation.
	ChannelCount = EEGChannels + AccelChannels + GyroChannels + 3
)

// Scale factors from raw counts to physical units.
const (
	eegScale   = 4500000.0 / 50331642.0 // uV per count
	accelScale = 1.0 / 4096.0           // g per count
	gyroScale  = 1.0 / 32.8             // deg/s per count
)

var (
	startCommand = []byte{0x61, 0x7C, 0x87}
	stopCommand  = []byte{0x63, 0x5C, 0xC5}
	ackResponse  = []byte{0x00, 0x00, 0x00}
)

// ErrOutOfSync is returned when a payload does not carry the expected
// header and footer bytes.
var ErrOutOfSync = errors.New("payload out of sync")

// ChannelNames returns the labels of the acquired channels in order.
func ChannelNames() []string {
	return []string{
		"EEG 1", "EEG 2", "EEG 3", "EEG 4", "EEG 5", "EEG 6", "EEG 7", "EEG 8",
		"Accelerometer X", "Accelerometer Y", "Accelerometer Z",
		"Gyroscope X", "Gyroscope Y", "Gyroscope Z",
		"Battery Level", "Counter", "Validation Indicator",
	}
}

func validFraming(p []byte) bool {
	return p[headerOffset] == 0xC0 && p[headerOffset+1] == 0x00 &&
		p[footerOffset] == 0x0D && p[footerOffset+1] == 0x0A
}

// DecodePayload converts one raw payload into ChannelCount physical values.
func DecodePayload(p []byte, dst []float32) error {
	if len(p) != PayloadSize {
		return fmt.Errorf("payload is %d bytes, want %d", len(p), PayloadSize)
	}
	if len(dst) < ChannelCount {
		return fmt.Errorf("destination holds %d channels, want %d", len(dst), ChannelCount)
	}
	if !validFraming(p) {
		return ErrOutOfSync
	}

	for i := 0; i < EEGChannels; i++ {
		b := p[eegOffset+3*i:]
		raw := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
		if raw&0x800000 != 0 {
			raw -= 1 << 24
		}
		dst[i] = float32(float64(raw) * eegScale)
	}

	ch := EEGChannels
	for i := 0; i < AccelChannels; i++ {
		raw := int16(binary.LittleEndian.Uint16(p[accelOffset+2*i:]))
		dst[ch] = float32(float64(raw) * accelScale)
		ch++
	}
	for i := 0; i < GyroChannels; i++ {
		raw := int16(binary.LittleEndian.Uint16(p[gyroOffset+2*i:]))
		dst[ch] = float32(float64(raw) * gyroScale)
		ch++
	}

	dst[ch] = float32(p[batteryOffset]&0x0F) * 100 / 15
	dst[ch+1] = float32(binary.LittleEndian.Uint32(p[counterOffset:]))
	dst[ch+2] = 1
	return nil
}
