// Command rigel is a minimal CLI around the rigel package: connect to a
// bootloader, load a firmware file, write it, optionally verify, and run
// the resident program. It exists to show the core's interface is
// sufficient to be driven from the outside; argument parsing beyond this
// is an explicit non-goal of the core itself.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/daedaluz/rigel"
	"github.com/daedaluz/rigel/device"
	"github.com/daedaluz/rigel/firmware"
	"github.com/daedaluz/rigel/hex32"
	"github.com/daedaluz/rigel/ifibin"
)

// knownDevices is a small built-in geometry table. A real deployment
// would load this from a config file; that loader is out of scope here.
var knownDevices = device.GeometryTable{
	{
		DevID: 0x1240,
		Name:  "PIC18F2455",
		Mem: device.Layout{
			FlashLow: 0x0800, FlashHigh: 0x7FFF,
			EEPROMLow: 0x0000, EEPROMHigh: 0x00FF,
			ConfigLow: 0x300000, ConfigHigh: 0x300006,
		},
		RLag: 2e6, WLag: 5e6, MaxPacketSize: 64,
	},
}

func main() {
	path := flag.String("port", "/dev/ttyUSB0", "serial device path")
	file := flag.String("file", "", "firmware file to load")
	format := flag.String("format", "hex32", "firmware format: hex32, ifibin, or raw")
	verify := flag.Bool("verify", false, "read back and compare after writing")
	run := flag.Bool("run", false, "run the resident program after writing")
	flag.Parse()

	if *file == "" {
		log.Fatal("rigel: -file is required")
	}

	var codec firmware.Codec
	switch strings.ToLower(*format) {
	case "hex32":
		codec = hex32.Codec{}
	case "ifibin":
		codec = ifibin.Codec{}
	case "raw":
		codec = firmware.Raw{}
	default:
		log.Fatalf("rigel: unknown format %q", *format)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("rigel: %v", err)
	}
	defer f.Close()

	session, err := rigel.Connect(*path, knownDevices)
	if err != nil {
		log.Fatalf("rigel: connect: %v", err)
	}
	defer session.Disconnect()

	session.Driver.VerifyOnWrite = *verify

	img, err := firmware.LoadImage(codec, f, session.Driver.Mem.FlashHigh+1,
		session.Driver.EraseByte(), device.BytesPerRow)
	if err != nil {
		log.Fatalf("rigel: load image: %v", err)
	}

	rows := (img.End - img.Start) / device.BytesPerRow
	if err := session.Driver.EraseFlash(img.Start, rows); err != nil {
		log.Fatalf("rigel: erase: %v", err)
	}
	if err := session.Driver.WriteFlash(img.Start, img.Data[img.Start:img.End]); err != nil {
		log.Fatalf("rigel: write: %v", err)
	}

	if *run {
		if err := session.RunUserCode(); err != nil {
			log.Fatalf("rigel: run: %v", err)
		}
	}
}
