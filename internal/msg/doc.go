// Package msg defines the page ⇄ worker message protocol.
//
// Every message is a plain object with a type discriminator:
//   - SKIP_WAITING: no payload; promotes a waiting worker to active
//   - SHOW_NOTIFICATION: {title, options}, optional reply port
//   - NOTIFICATION_SHOWN: {title, body, tag}, broadcast worker → page
//
// Reply ports carry exactly one reply; posting is non-blocking and a
// missing listener never stalls the worker.
package msg
