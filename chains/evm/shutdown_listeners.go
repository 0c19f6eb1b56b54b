package evm

// ShutdownListeners stops the approval event handler and the connection monitor.
func (e *evm) ShutdownListeners() {
	e.eventHandlerMutex.Lock()
	if e.eventHandler != nil {
		e.eventHandler.Stop()
		e.eventHandler = nil
	}
	e.eventHandlerMutex.Unlock()

	e.monitorMutex.Lock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
	e.monitorMutex.Unlock()
}
