package device

import (
	"bytes"

	"github.com/daedaluz/rigel/an851"
)

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// EraseFlash erases rows of flash starting at address, in chunks of at
// most 255 rows per request. On an IFI device, erase is implemented by
// IFI write-row of zero (the vendor's extension-specific erase).
func (d *Driver) EraseFlash(address uint32, rows uint32) error {
	if !d.connected {
		return ErrNotConnected{}
	}
	if address < d.Mem.FlashLow || address+rows*BytesPerRow > d.Mem.FlashHigh+1 {
		return ErrRegionViolation{Detail: "erase region outside declared flash"}
	}

	var done uint32
	for done < rows {
		chunk := rows - done
		if chunk > 255 {
			chunk = 255
		}
		addr := address + done*BytesPerRow
		l, h, u := addrBytes(addr)
		var err error
		if d.IsIFI {
			_, err = d.Engine.Do(an851.CmdIFIWriteRow, []byte{byte(chunk), l, h, u, 0x00}, 0)
		} else {
			_, err = d.Engine.Do(an851.CmdEraseFlash, []byte{byte(chunk), l, h, u}, 0)
		}
		if err != nil {
			return wrapErr("erase flash", err)
		}
		done += chunk
		d.report(done, rows)
	}
	d.report(rows, rows)
	return nil
}

// WriteFlash writes data (which must be a multiple of BytesPerBlock, and
// start on a block boundary) into flash starting at address. Iterations
// move at most MaxPacketSize/BytesPerBlock blocks per request, padding the
// scratch buffer with 0xFF before transmission. When
// VerifyOnWrite is set, each chunk is read back and compared.
func (d *Driver) WriteFlash(address uint32, data []byte) error {
	if !d.connected {
		return ErrNotConnected{}
	}
	if address%BytesPerBlock != 0 || len(data)%BytesPerBlock != 0 {
		return ErrAlignment{Detail: "flash write must be block-aligned"}
	}
	end := address + uint32(len(data))
	if address < d.Mem.FlashLow || end-1 > d.Mem.FlashHigh {
		return ErrRegionViolation{Detail: "write region outside declared flash"}
	}

	maxBlocks := uint32(d.MaxPacketSize) / BytesPerBlock
	if maxBlocks == 0 {
		maxBlocks = 1
	}
	totalBlocks := uint32(len(data)) / BytesPerBlock

	var done uint32
	for done < totalBlocks {
		blocks := totalBlocks - done
		if blocks > maxBlocks {
			blocks = maxBlocks
		}
		nbytes := blocks * BytesPerBlock
		addr := address + done*BytesPerBlock

		for i := range d.scratch {
			d.scratch[i] = 0xFF
		}
		copy(d.scratch[:nbytes], data[done*BytesPerBlock:done*BytesPerBlock+nbytes])

		l, h, u := addrBytes(addr)
		payload := append([]byte{byte(blocks), l, h, u}, d.scratch[:nbytes]...)
		if _, err := d.Engine.Do(an851.CmdWriteFlash, payload, 0); err != nil {
			return wrapErr("write flash", err)
		}

		done += blocks
		d.report(done*BytesPerBlock, totalBlocks*BytesPerBlock)

		if d.VerifyOnWrite {
			readBack, err := d.ReadFlash(addr, nbytes)
			if err != nil {
				return wrapErr("verify flash", err)
			}
			if !bytes.Equal(readBack, d.scratch[:nbytes]) {
				return ErrVerifyMismatch{Address: addr}
			}
		}
	}
	d.report(totalBlocks*BytesPerBlock, totalBlocks*BytesPerBlock)
	return nil
}

// ReadFlash reads length bytes of flash starting at address, in chunks of
// at most MaxPacketSize bytes.
func (d *Driver) ReadFlash(address uint32, length uint32) ([]byte, error) {
	if !d.connected {
		return nil, ErrNotConnected{}
	}
	if length == 0 {
		return nil, nil
	}
	if address+length-1 > d.Mem.FlashHigh {
		return nil, ErrRegionViolation{Detail: "read region outside declared flash"}
	}
	out := make([]byte, 0, length)
	var cur uint32
	max := uint32(d.MaxPacketSize)
	for cur < length {
		chunk := length - cur
		if chunk > max {
			chunk = max
		}
		l, h, u := addrBytes(address + cur)
		reply, err := d.Engine.Do(an851.CmdReadFlash, []byte{byte(chunk), l, h, u}, int(chunk))
		if err != nil {
			return nil, wrapErr("read flash", err)
		}
		out = append(out, reply...)
		cur += chunk
		d.report(cur, length)
	}
	return out, nil
}

// WriteEEPROM writes data to EEPROM starting at address, in chunks of at
// most MaxPacketSize bytes. No alignment is required.
func (d *Driver) WriteEEPROM(address uint32, data []byte) error {
	if !d.connected {
		return ErrNotConnected{}
	}
	if address+uint32(len(data)) > d.Mem.EEPROMHigh+1 {
		return ErrRegionViolation{Detail: "write region outside declared eeprom"}
	}
	max := uint32(d.MaxPacketSize)
	var cur uint32
	for cur < uint32(len(data)) {
		chunk := uint32(len(data)) - cur
		if chunk > max {
			chunk = max
		}
		l, h, _ := addrBytes(address + cur)
		payload := append([]byte{byte(chunk), l, h, 0x00}, data[cur:cur+chunk]...)
		if _, err := d.Engine.Do(an851.CmdWriteEEPROM, payload, 0); err != nil {
			return wrapErr("write eeprom", err)
		}
		d.report(cur+chunk, uint32(len(data)))

		if d.VerifyOnWrite {
			readBack, err := d.ReadEEPROM(address+cur, chunk)
			if err != nil {
				return wrapErr("verify eeprom", err)
			}
			if !bytes.Equal(readBack, data[cur:cur+chunk]) {
				return ErrVerifyMismatch{Address: address + cur}
			}
		}
		cur += chunk
	}
	d.report(uint32(len(data)), uint32(len(data)))
	return nil
}

// ReadEEPROM reads length bytes of EEPROM starting at address.
func (d *Driver) ReadEEPROM(address uint32, length uint32) ([]byte, error) {
	if !d.connected {
		return nil, ErrNotConnected{}
	}
	if length == 0 {
		return nil, nil
	}
	if address+length-1 > d.Mem.EEPROMHigh {
		return nil, ErrRegionViolation{Detail: "read region outside declared eeprom"}
	}
	out := make([]byte, 0, length)
	max := uint32(d.MaxPacketSize)
	var cur uint32
	for cur < length {
		chunk := length - cur
		if chunk > max {
			chunk = max
		}
		l, h, _ := addrBytes(address + cur)
		reply, err := d.Engine.Do(an851.CmdReadEEPROM, []byte{byte(chunk), l, h, 0x00}, int(chunk))
		if err != nil {
			return nil, wrapErr("read eeprom", err)
		}
		out = append(out, reply...)
		cur += chunk
		d.report(cur, length)
	}
	return out, nil
}

// ReadUserProgram dumps user flash starting at flash_low, applying the
// heuristic end-of-program detection: once four consecutive chunks equal
// the device's erase byte, the scan stops and the trailing all-erased
// bytes are excluded. The return value is the absolute end address of the
// dump (one past its last byte), not a count of bytes from flash_low; buf
// is indexed by absolute address, so buf[flash_low:n] holds the program.
func (d *Driver) ReadUserProgram(buf []byte) (int, error) {
	if !d.connected {
		return 0, ErrNotConnected{}
	}
	erase := d.eraseByte()
	max := uint32(d.MaxPacketSize)
	addr := d.Mem.FlashLow
	high := d.Mem.FlashHigh

	var consecutiveErased, erasedBytes uint32
	for addr < high {
		chunk := max
		if high-addr < chunk {
			chunk = high - addr
		}
		if addr+chunk >= uint32(len(buf)) {
			chunk -= addr + chunk - uint32(len(buf))
		}
		if chunk == 0 {
			break
		}

		l, h, u := addrBytes(addr)
		reply, err := d.Engine.Do(an851.CmdReadFlash, []byte{byte(chunk), l, h, u}, int(chunk))
		if err != nil {
			return 0, wrapErr("read user program", err)
		}
		copy(buf[addr:addr+chunk], reply)

		allErased := true
		for _, b := range reply {
			if b != erase {
				allErased = false
				break
			}
		}
		addr += chunk

		if allErased {
			consecutiveErased++
			erasedBytes += chunk
		} else {
			consecutiveErased, erasedBytes = 0, 0
		}

		if consecutiveErased == 4 {
			d.report(addr, addr)
			addr -= erasedBytes
			break
		}
		d.report(addr, high)
	}
	return int(addr), nil
}

// ReadBootSector reads the reserved bootloader region [0, flash_low).
func (d *Driver) ReadBootSector(buf []byte) error {
	if !d.connected {
		return ErrNotConnected{}
	}
	if uint32(len(buf)) < d.Mem.FlashLow {
		return ErrRegionViolation{Detail: "boot sector buffer too small"}
	}
	data, err := d.ReadFlash(0, d.Mem.FlashLow)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}
