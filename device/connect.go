package device

import (
	"github.com/daedaluz/rigel/an851"
	"github.com/daedaluz/rigel/serial"
)

// Connect identifies the device attached to port and configures a Driver
// for it: generous default timings for the identification handshake,
// version read, device-ID read, geometry lookup in table, a tighter
// engine using the matched geometry's lags, a non-destructive IFI probe,
// configuration-register capture, and a BBSIZ-driven boot-block-size
// adjustment.
func Connect(port *serial.Port, table GeometryTable) (*Driver, error) {
	engine := an851.NewEngine(port)

	verReply, err := engine.Do(an851.CmdReadVersion, []byte{0x02}, 2)
	if err != nil {
		return nil, wrapErr("read version", err)
	}
	bootVer := uint16(verReply[0]) | uint16(verReply[1])<<8

	l, h, u := addrBytes(DeviceIDAddress)
	idReply, err := engine.Do(an851.CmdReadFlash, []byte{2, l, h, u}, 2)
	if err != nil {
		return nil, wrapErr("read device id", err)
	}
	devID := uint16(idReply[0]) | uint16(idReply[1])<<8

	geometry, ok := table.lookup(devID)
	if !ok {
		return nil, ErrUnknownDevice{DevID: devID}
	}

	engine.RLag = geometry.RLag
	engine.WLag = geometry.WLag

	d := &Driver{
		Engine:      engine,
		Geometry:    geometry,
		DeviceID:    devID,
		BootVersion: bootVer,
	}

	if err := d.probeIFI(); err != nil {
		return nil, wrapErr("probing IFI extension", err)
	}

	const configLen = 7
	cl, ch, cu := addrBytes(geometry.Mem.ConfigLow)
	cfgReply, err := engine.Do(an851.CmdReadConfig, []byte{configLen, cl, ch, cu}, configLen)
	if err != nil {
		return nil, wrapErr("read config registers", err)
	}
	copy(d.Config[:], cfgReply)

	switch d.Config[cfgC4L] & bitBBSIZ {
	case 0x00:
		d.Mem.FlashLow = 0x0800 // 2 KiB
	case 0x10:
		d.Mem.FlashLow = 0x1000 // 4 KiB
	default:
		d.Mem.FlashLow = 0x2000 // 8 KiB
	}

	d.connected = true
	return d, nil
}

// probeIFI detects the IFI write-row extension non-destructively: it saves
// one row of flash at flash_low, attempts an IFI write-row of zero over
// it, and restores the saved data if that succeeded.
func (d *Driver) probeIFI() error {
	l, h, u := addrBytes(d.Mem.FlashLow)
	saved, err := d.Engine.Do(an851.CmdReadFlash, []byte{BytesPerRow, l, h, u}, BytesPerRow)
	if err != nil {
		return err
	}

	_, err = d.Engine.Do(an851.CmdIFIWriteRow, []byte{1, l, h, u, 0x00}, 0)
	if err != nil {
		d.IsIFI = false
		return nil
	}
	d.IsIFI = true

	blocks := BytesPerRow / BytesPerBlock
	payload := append([]byte{byte(blocks), l, h, u}, saved...)
	_, err = d.Engine.Do(an851.CmdWriteFlash, payload, 0)
	return err
}

// Disconnect closes the underlying transport and marks the driver
// unusable. It is idempotent.
func (d *Driver) Disconnect() error {
	if !d.connected {
		return nil
	}
	d.connected = false
	return d.Engine.Port.Close()
}

// Reset sends a bare protocol reset, returning the device to bootloader
// mode without running the resident program.
func (d *Driver) Reset() error {
	if !d.connected {
		return ErrNotConnected{}
	}
	_, err := d.Engine.Do(an851.CmdReset, []byte{0x00}, 0)
	return wrapErr("reset", err)
}

// RunUserCode hands control to the resident program. On an IFI device
// this is a single IFI run command; on a standard device the bootloader
// exits only when a non-0xFF byte is written to the last EEPROM address,
// so this writes 0x57 there and follows with a reset. After RunUserCode
// the driver must not be used again without reconnecting.
func (d *Driver) RunUserCode() error {
	if !d.connected {
		return ErrNotConnected{}
	}
	defer func() { d.connected = false }()

	if d.IsIFI {
		_, err := d.Engine.Do(an851.CmdIFIRun, []byte{0x40}, 0)
		return wrapErr("ifi run", err)
	}

	l, h, _ := addrBytes(d.Mem.EEPROMHigh)
	if _, err := d.Engine.Do(an851.CmdWriteEEPROM, []byte{1, l, h, 0x00, 0x57}, 0); err != nil {
		return wrapErr("eeprom exit write", err)
	}
	_, err := d.Engine.Do(an851.CmdReset, []byte{0x00}, 0)
	return wrapErr("reset", err)
}
