// SPDX-License-Identifier: MPL-2.0

package packmgr

type (
	// Observer receives manager events. All methods are called synchronously
	// from Update, on the goroutine driving the manager.
	Observer interface {
		// RequestStartLoading fires when a request becomes active for the first time.
		RequestStartLoading(pack Pack)
		// PackStateChanged fires on every pack state transition.
		PackStateChanged(pack Pack)
		// PackDownloadChanged fires when a pack's downloaded byte count changes.
		PackDownloadChanged(pack Pack)
		// RequestProgressChanged fires after a tick that moved the active request.
		RequestProgressChanged(req *PackRequest)
		// FileErrorOccurred fires once when the local I/O breaker trips.
		FileErrorOccurred(path string, errno int)
	}

	// ObserverFuncs adapts optional callbacks to Observer. Nil fields are skipped.
	ObserverFuncs struct {
		OnRequestStartLoading    func(Pack)
		OnPackStateChanged       func(Pack)
		OnPackDownloadChanged    func(Pack)
		OnRequestProgressChanged func(*PackRequest)
		OnFileErrorOccurred      func(path string, errno int)
	}

	multiObserver []Observer
)

// RequestStartLoading implements Observer.
func (o ObserverFuncs) RequestStartLoading(p Pack) {
	if o.OnRequestStartLoading != nil {
		o.OnRequestStartLoading(p)
	}
}

// PackStateChanged implements Observer.
func (o ObserverFuncs) PackStateChanged(p Pack) {
	if o.OnPackStateChanged != nil {
		o.OnPackStateChanged(p)
	}
}

// PackDownloadChanged implements Observer.
func (o ObserverFuncs) PackDownloadChanged(p Pack) {
	if o.OnPackDownloadChanged != nil {
		o.OnPackDownloadChanged(p)
	}
}

// RequestProgressChanged implements Observer.
func (o ObserverFuncs) RequestProgressChanged(r *PackRequest) {
	if o.OnRequestProgressChanged != nil {
		o.OnRequestProgressChanged(r)
	}
}

// FileErrorOccurred implements Observer.
func (o ObserverFuncs) FileErrorOccurred(path string, errno int) {
	if o.OnFileErrorOccurred != nil {
		o.OnFileErrorOccurred(path, errno)
	}
}

func (m multiObserver) RequestStartLoading(p Pack) {
	for _, o := range m {
		o.RequestStartLoading(p)
	}
}

func (m multiObserver) PackStateChanged(p Pack) {
	for _, o := range m {
		o.PackStateChanged(p)
	}
}

func (m multiObserver) PackDownloadChanged(p Pack) {
	for _, o := range m {
		o.PackDownloadChanged(p)
	}
}

func (m multiObserver) RequestProgressChanged(r *PackRequest) {
	for _, o := range m {
		o.RequestProgressChanged(r)
	}
}

func (m multiObserver) FileErrorOccurred(path string, errno int) {
	for _, o := range m {
		o.FileErrorOccurred(path, errno)
	}
}
