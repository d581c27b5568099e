package webui

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Disk Updater</title>
<style>
body { font-family: sans-serif; max-width: 40em; margin: 3em auto; }
#status { margin-top: 1em; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>Disk Updater</h1>
<p>Upload a file to copy it into the disk image.</p>
<form id="inject">
<input type="file" name="file" required>
<button type="submit">Inject</button>
</form>
<div id="status"></div>
<script>
document.getElementById('inject').addEventListener('submit', async (e) => {
  e.preventDefault();
  const status = document.getElementById('status');
  status.textContent = 'Uploading...';
  try {
    const resp = await fetch('/api/inject', { method: 'POST', body: new FormData(e.target) });
    const body = await resp.json();
    if (body.success) {
      status.textContent = 'Copied to ' + body.result.destination + ' (' + body.result.strategy + ', ' + body.result.backend + ')\n' + body.result.digest;
    } else {
      status.textContent = 'Error: ' + body.error;
    }
  } catch (err) {
    status.textContent = 'Error: ' + err;
  }
});
</script>
</body>
</html>
`
