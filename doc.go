/*
WMBUS is a decoder for wireless M-Bus (EN 13757-4) telegrams sent by water,
heat, gas and electricity meters.

Commands:

	wmbus decode [hex...]

Decodes each argument as one telegram. Without arguments telegrams are read
from stdin, one per line. Hex may contain whitespace and the separators |, _
and -, a leading 0x is ignored.

	wmbus receive [-port=/dev/ttyUSB0] [-input=file]

Reads telegrams written as hex lines by a receiver on a serial port, or from a
file. Lines that are empty or start with # are skipped.

	wmbus version

Displays build tag, date and commit hash.

Flags common to decode and receive:

	--config=wmbus.yaml

YAML config file. A missing default file is not an error. Every flag may also
be given in the environment as WMBUS_ followed by the flag name in upper case
with dashes as underscores, e.g. WMBUS_KEYS_FILE. Flags win over the
environment, which wins over the config file.

	--format=plain

Sets the output format: plain, csv, json or xml. For json and xml output each
line is an element, there is no root node. The csv header is written once.

	--key=12345678=000102030405060708090A0B0C0D0E0F
	--keys-file=keys.yaml

AES keys by device address, an 8 digit decimal identifier. The keys file is a
YAML mapping of address to 32 hex digits.

	--disable-checksums, --checksum-removed, --decrypted

Skip block checksum verification, accept telegrams whose receiver already
stripped the checksums, or whose receiver already decrypted them.

	--filter-address=12345678,87654321
	--filter-type=7,0x16
	--unique

Display only messages from the given addresses or device types. Unique
suppresses repeated transmissions of the same telegram from each meter.

	--loglevel=info
	--logfile=

Log level and an optional log file, rotated by size.

Flags specific to receive:

	--port, --baud=9600

Serial port of the receiver, 8N1 framing.

	--listen=:8080

Serves decoded messages as JSON to websocket clients at ws://<listen>/ws.

	--duration=0

Time to receive for, 0 for infinite.

	--single

Exit after the first message passing the filters.

	--list-ports

Lists the serial ports present and exits.

Example config file:

	format: json
	keys_file: keys.yaml
	serial:
	  port: /dev/ttyUSB0
	  baud_rate: 9600
	feed:
	  listen: ":8080"
	log:
	  level: debug
	  file: /var/log/wmbus/wmbus.log
	  max_size_mb: 25
*/
package main
