package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/zacjszewczyk/csd-file-server/client/modules"
)

const transferTimeout = 10 * time.Minute

// StartApp opens the desktop client and blocks until its window is closed.
func StartApp(server, port string) {
	a := app.New()
	w := a.NewWindow("CSD File Server Client")

	ipEntry := widget.NewEntry()
	ipEntry.SetPlaceHolder("127.0.0.1")
	ipEntry.SetText(server)

	portEntry := widget.NewEntry()
	portEntry.SetPlaceHolder("9000")
	portEntry.SetText(port)

	fileEntry := widget.NewEntry()
	fileEntry.SetPlaceHolder("Local file to upload, or remote name to download")

	status := widget.NewLabel("")
	log := newTransferLog()

	var uploadBtn, downloadBtn *widget.Button
	setBusy := func(busy bool) {
		if busy {
			uploadBtn.Disable()
			downloadBtn.Disable()
			return
		}
		uploadBtn.Enable()
		downloadBtn.Enable()
	}

	run := func(verb string, op func(ctx context.Context, c *modules.Client, file string) (int64, error)) {
		ip := strings.TrimSpace(ipEntry.Text)
		port := strings.TrimSpace(portEntry.Text)
		file := strings.TrimSpace(fileEntry.Text)
		if ip == "" || port == "" || file == "" {
			status.SetText("Server, port and file are required")
			return
		}

		client := modules.NewClient(ip, port)
		setBusy(true)
		status.SetText(fmt.Sprintf("%s %s ...", verb, file))
		log.printNormal(fmt.Sprintf("> %s %s", strings.ToLower(verb), file))

		go func() {
			defer setBusy(false)

			ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
			defer cancel()

			n, err := op(ctx, client, file)
			if err != nil {
				status.SetText("Transfer failed")
				log.printError(fmt.Sprintf("Error: %v", err))
				return
			}
			status.SetText("Done")
			log.printSuccess(fmt.Sprintf("%s %s: %d bytes", verb, file, n))
		}()
	}

	uploadBtn = widget.NewButton("Upload", func() {
		run("Uploading", func(ctx context.Context, c *modules.Client, file string) (int64, error) {
			return c.Upload(ctx, file, "")
		})
	})
	downloadBtn = widget.NewButton("Download", func() {
		run("Downloading", func(ctx context.Context, c *modules.Client, file string) (int64, error) {
			return c.Download(ctx, file, "")
		})
	})

	form := container.NewVBox(
		widget.NewLabelWithStyle("CSD File Server", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel("Server IP:"),
		ipEntry,
		widget.NewLabel("Port:"),
		portEntry,
		widget.NewLabel("File:"),
		fileEntry,
		container.NewGridWithColumns(2, uploadBtn, downloadBtn),
		status,
	)

	w.SetContent(container.NewBorder(form, nil, nil, nil, log.scroll))
	w.Resize(fyne.NewSize(700, 560))
	w.ShowAndRun()
}
