package notify

import "context"

// rootPath is where a click lands the user.
const rootPath = "/"

// ActionDismiss is the one action that takes no navigation.
const ActionDismiss = "dismiss"

// HandleClick routes a user's tap on a notification or one of its action
// buttons. The notification is closed first, always. A "dismiss" action
// stops there. Any other action (including the default tap) focuses an
// existing client at the root path, or opens exactly one new window there.
func (d *Dispatcher) HandleClick(ctx context.Context, tag, action string) error {
	if err := d.notifier.Close(ctx, tag); err != nil {
		d.log.Warn("failed to close notification", "tag", tag, "error", err)
	}

	if action == ActionDismiss {
		return nil
	}

	for _, c := range d.registry.List() {
		if c.URL == rootPath {
			return d.registry.Focus(c.ID)
		}
	}
	d.registry.OpenWindow(rootPath)
	return nil
}
